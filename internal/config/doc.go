// Package config provides configuration management for todoe2e.
//
// Configuration is layered. Later layers override earlier ones:
//
//  1. Defaults (GetDefaultConfig)
//  2. User configuration (~/.config/todoe2e/config.yaml)
//  3. Project configuration (./.todoe2e/config.yaml)
//  4. A file passed with --config
//  5. Environment variables (TEST_DB_HOST, API_BASE_URL, HEADLESS, ...)
//
// A YAML layer only replaces the keys it mentions:
//
//	database:
//	  host: localhost
//	  port: 5433
//	  startup:
//	    maxRetries: 30
//	    interval: 1s
//	api:
//	  baseURL: http://localhost:5085
//	  manage: false
//	compose:
//	  enabled: true
//	  file: docker-compose.test.yml
//	browser:
//	  headless: true
//
// The resulting Config value is handed to the supervisor and the suites
// explicitly; there are no package-level timeout globals.
package config
