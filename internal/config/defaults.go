package config

import (
	"time"
)

const (
	defaultDBStartupRetries       = 30
	defaultAPIStartupRetries      = 60
	defaultFrontendStartupRetries = 60
)

// GetDefaultConfig returns the configuration used when no file or
// environment variable overrides a value.
func GetDefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5433,
			Name:     "todoapp_test",
			User:     "postgres",
			Password: "postgres",
			Startup:  WaitPolicy{MaxRetries: defaultDBStartupRetries, Interval: time.Second},
		},
		API: BackendConfig{
			BaseURL:      "http://localhost:5085",
			HealthPath:   "/swagger/index.html",
			AcceptStatus: []int{200, 404}, // 404 still means Kestrel is serving
			Manage:       true,
			ProjectDir:   "../todoapp-backend-api",
			Startup:      WaitPolicy{MaxRetries: defaultAPIStartupRetries, Interval: time.Second},
		},
		Frontend: FrontendConfig{
			BaseURL:      "http://localhost:8080",
			AcceptStatus: []int{200},
			Manage:       true,
			ProjectDir:   "../todoapp-frontend-vue2",
			Startup:      WaitPolicy{MaxRetries: defaultFrontendStartupRetries, Interval: time.Second},
		},
		Compose: ComposeConfig{
			Enabled:    true,
			File:       "docker-compose.test.yml",
			DownOnExit: true,
		},
		Supervisor: SupervisorConfig{
			Grace: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:     false,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Users: UsersConfig{
			EmailDomain: "example.com",
			BcryptCost:  10,
		},
		Features: FeaturesConfig{
			Dir: "features",
		},
	}
}
