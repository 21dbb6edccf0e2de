package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"todoe2e/internal/config"
	"todoe2e/pkg/logging"
)

var (
	configPath string
	logLevel   string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "todoe2e",
	Short: "End-to-end tests for the todo app's authentication flow",
	Long: `todoe2e drives the todo app's login flow end to end. It brings up the
Postgres database, the backend API and (for the UI suite) the frontend dev
server when they are not already running, resets the database before every
scenario and executes the Gherkin suites under features/.

Configuration is read from ~/.config/todoe2e/config.yaml, .todoe2e/config.yaml
in the current directory, the file given with --config and finally the
environment (TEST_DB_HOST, API_BASE_URL, HEADLESS and friends).`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed scenarios, unreachable services)
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		if debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "todoe2e version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is .todoe2e/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (same as --log-level=debug)")

	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads the layered configuration and validates it.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
