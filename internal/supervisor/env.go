package supervisor

import (
	"fmt"
	"net/url"
	"strconv"

	"todoe2e/internal/config"
)

// BackendEnv translates the database settings into every naming convention
// the ASP.NET backend reads.
func BackendEnv(cfg config.Config) []string {
	db := cfg.Database
	conn := db.KeyValue()
	return []string{
		"ConnectionStrings__DefaultConnection=" + conn,
		"ConnectionStrings:DefaultConnection=" + conn,
		fmt.Sprintf("DATABASE_URL=postgresql://%s:%s@%s:%d/%s", db.User, db.Password, db.Host, db.Port, db.Name),
		"DB_HOST=" + db.Host,
		"DB_PORT=" + strconv.Itoa(db.Port),
		"DB_NAME=" + db.Name,
		"DB_USER=" + db.User,
		"DB_PASSWORD=" + db.Password,
		"ASPNETCORE_ENVIRONMENT=Development",
	}
}

// FrontendEnv points the Vue dev server at the real API instead of its mock
// service.
func FrontendEnv(cfg config.Config) []string {
	env := []string{
		"VUE_APP_USE_MOCK=false",
		"VUE_APP_API_BASE_URL=" + cfg.API.BaseURL,
	}
	if u, err := url.Parse(cfg.Frontend.BaseURL); err == nil && u.Port() != "" {
		env = append(env, "PORT="+u.Port())
	}
	return env
}

// backendCommand is the configured command or dotnet run bound to the API URL.
func backendCommand(cfg config.Config) []string {
	if len(cfg.API.Command) > 0 {
		return cfg.API.Command
	}
	return []string{"dotnet", "run", "--urls", cfg.API.BaseURL}
}

func frontendCommand(cfg config.Config) []string {
	if len(cfg.Frontend.Command) > 0 {
		return cfg.Frontend.Command
	}
	return []string{"npm", "run", "serve"}
}
