package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the top-level configuration structure for todoe2e.
// It is passed explicitly to the supervisor and the suites; nothing reads
// timeouts from package globals.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	API        BackendConfig    `yaml:"api"`
	Frontend   FrontendConfig   `yaml:"frontend"`
	Compose    ComposeConfig    `yaml:"compose"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Browser    BrowserConfig    `yaml:"browser"`
	Users      UsersConfig      `yaml:"users"`
	Features   FeaturesConfig   `yaml:"features"`
}

// WaitPolicy bounds a readiness wait: at most MaxRetries attempts, Interval apart.
type WaitPolicy struct {
	MaxRetries int           `yaml:"maxRetries"`
	Interval   time.Duration `yaml:"interval"`
}

// Budget is the longest the policy can wait.
func (p WaitPolicy) Budget() time.Duration {
	if p.MaxRetries <= 1 {
		return 0
	}
	return time.Duration(p.MaxRetries-1) * p.Interval
}

// DatabaseConfig holds the Postgres connection parameters of the test database.
type DatabaseConfig struct {
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Name     string     `yaml:"name"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Startup  WaitPolicy `yaml:"startup"`
}

// URL returns the connection string in postgres URL form.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

// KeyValue returns the connection string in the semicolon separated
// Host=...;Port=... form expected by Npgsql.
func (d DatabaseConfig) KeyValue() string {
	return fmt.Sprintf("Host=%s;Port=%d;Database=%s;Username=%s;Password=%s",
		d.Host, d.Port, d.Name, d.User, d.Password)
}

// BackendConfig describes the API under test and how to launch it.
type BackendConfig struct {
	BaseURL      string     `yaml:"baseURL"`
	HealthPath   string     `yaml:"healthPath"`
	AcceptStatus []int      `yaml:"acceptStatus,omitempty"`
	Manage       bool       `yaml:"manage"`
	ProjectDir   string     `yaml:"projectDir"`
	Command      []string   `yaml:"command,omitempty"` // defaults to dotnet run --urls <BaseURL>
	Startup      WaitPolicy `yaml:"startup"`
}

// FrontendConfig describes the UI dev server and how to launch it.
type FrontendConfig struct {
	BaseURL      string     `yaml:"baseURL"`
	AcceptStatus []int      `yaml:"acceptStatus,omitempty"`
	Manage       bool       `yaml:"manage"`
	ProjectDir   string     `yaml:"projectDir"`
	Command      []string   `yaml:"command,omitempty"`
	Startup      WaitPolicy `yaml:"startup"`
}

// ComposeConfig controls the docker compose project that hosts the database.
type ComposeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	File       string `yaml:"file"`
	ProjectDir string `yaml:"projectDir,omitempty"`
	DownOnExit bool   `yaml:"downOnExit"`
}

// SupervisorConfig holds child process lifecycle settings.
type SupervisorConfig struct {
	Grace time.Duration `yaml:"grace"`
}

// BrowserConfig configures the Chromium session used by the UI suite.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless"`
	ExecPath     string `yaml:"execPath,omitempty"`
	WindowWidth  int    `yaml:"windowWidth"`
	WindowHeight int    `yaml:"windowHeight"`
}

// UsersConfig controls how precondition users are provisioned.
type UsersConfig struct {
	EmailDomain string `yaml:"emailDomain"`
	// AllowDirectInsert lets provisioning fall back to writing the Users row
	// with a locally computed bcrypt hash when registration fails.
	AllowDirectInsert bool `yaml:"allowDirectInsert"`
	BcryptCost        int  `yaml:"bcryptCost"`
}

// FeaturesConfig locates the Gherkin fixtures.
type FeaturesConfig struct {
	Dir  string `yaml:"dir"`
	Tags string `yaml:"tags,omitempty"`
}
