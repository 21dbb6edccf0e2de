package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"todoe2e/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/todoe2e"
	projectConfigDir = ".todoe2e"
	configFileName   = "config.yaml"
)

// Environment variables understood by LoadConfig. Startup timeouts are in
// seconds and are polled once per second.
const (
	EnvDBHost                 = "TEST_DB_HOST"
	EnvDBPort                 = "TEST_DB_PORT"
	EnvDBName                 = "TEST_DB_NAME"
	EnvDBUser                 = "TEST_DB_USER"
	EnvDBPassword             = "TEST_DB_PASSWORD"
	EnvAPIBaseURL             = "API_BASE_URL"
	EnvAPIStartupTimeout      = "API_STARTUP_TIMEOUT"
	EnvFrontendBaseURL        = "FRONTEND_BASE_URL"
	EnvFrontendStartupTimeout = "FRONTEND_STARTUP_TIMEOUT"
	EnvHeadless               = "HEADLESS"
)

// LoadConfig layers defaults, the user file, the project file, the file at
// explicitPath (if non-empty) and finally environment variables.
func LoadConfig(explicitPath string) (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if err := overlayIfExists(&config, userConfigPath); err != nil {
		return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if err := overlayIfExists(&config, projectConfigPath); err != nil {
		return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	if explicitPath != "" {
		if err := loadConfigFromFile(explicitPath, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", explicitPath, err)
		}
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func overlayIfExists(config *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return loadConfigFromFile(path, config)
}

// loadConfigFromFile decodes a YAML file on top of config. Keys missing from
// the file keep their current value.
func loadConfigFromFile(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

func applyEnv(config *Config) error {
	if v, ok := osLookupEnv(EnvDBHost); ok {
		config.Database.Host = v
	}
	if v, ok := osLookupEnv(EnvDBPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDBPort, v, err)
		}
		config.Database.Port = port
	}
	if v, ok := osLookupEnv(EnvDBName); ok {
		config.Database.Name = v
	}
	if v, ok := osLookupEnv(EnvDBUser); ok {
		config.Database.User = v
	}
	if v, ok := osLookupEnv(EnvDBPassword); ok {
		config.Database.Password = v
	}
	if v, ok := osLookupEnv(EnvAPIBaseURL); ok {
		config.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := osLookupEnv(EnvAPIStartupTimeout); ok {
		policy, err := secondsPolicy(EnvAPIStartupTimeout, v)
		if err != nil {
			return err
		}
		config.API.Startup = policy
	}
	if v, ok := osLookupEnv(EnvFrontendBaseURL); ok {
		config.Frontend.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := osLookupEnv(EnvFrontendStartupTimeout); ok {
		policy, err := secondsPolicy(EnvFrontendStartupTimeout, v)
		if err != nil {
			return err
		}
		config.Frontend.Startup = policy
	}
	if v, ok := osLookupEnv(EnvHeadless); ok {
		config.Browser.Headless = parseBool(v)
	}
	return nil
}

func secondsPolicy(name, value string) (WaitPolicy, error) {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return WaitPolicy{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if seconds <= 0 {
		return WaitPolicy{}, fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return WaitPolicy{MaxRetries: seconds, Interval: time.Second}, nil
}

// parseBool accepts the spellings shell users tend to reach for.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Database.Host == "" {
		errs = append(errs, errors.New("database host must be set"))
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database port must be between 1 and 65535, got %d", c.Database.Port))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database name must be set"))
	}
	if err := validateURL("api base URL", c.API.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("frontend base URL", c.Frontend.BaseURL); err != nil {
		errs = append(errs, err)
	}
	for name, p := range map[string]WaitPolicy{
		"database startup": c.Database.Startup,
		"api startup":      c.API.Startup,
		"frontend startup": c.Frontend.Startup,
	} {
		if p.MaxRetries < 1 {
			errs = append(errs, fmt.Errorf("%s maxRetries must be at least 1", name))
		}
		if p.Interval <= 0 {
			errs = append(errs, fmt.Errorf("%s interval must be positive", name))
		}
	}
	if c.Supervisor.Grace <= 0 {
		errs = append(errs, errors.New("supervisor grace period must be positive"))
	}
	if c.Compose.Enabled && c.Compose.File == "" {
		errs = append(errs, errors.New("compose file must be set when compose is enabled"))
	}

	return errors.Join(errs...)
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s %q must use http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q has no host", name, raw)
	}
	return nil
}
