package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"todoe2e/internal/harness"
	"todoe2e/pkg/logging"
)

var (
	runSuite    string
	runTags     string
	runFeatures []string
	runReport   string
	runQuiet    bool
	runJSON     bool
	runVerbose  bool
	runFailFast bool
	runHeadless bool
	runKeepEnv  bool
	runTimeout  time.Duration
)

var errScenariosFailed = errors.New("one or more scenarios failed")

// completeSuiteFlag provides shell completion for the suite flag
func completeSuiteFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"api", "ui", "all"}, cobra.ShellCompDirectiveNoFileComp
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API and UI login suites",
	Long: `Runs the Gherkin login suites against the todo app.

Before the first scenario the environment is brought up: the database via
docker compose, the backend with 'dotnet run' and, for the UI suite, the
frontend with 'npm run serve'. Anything already reachable is used as is and
left running afterwards. Every scenario starts from an empty database.

Example usage:
  todoe2e run                          # API and UI suites
  todoe2e run --suite api              # API suite only
  todoe2e run --tags @smoke            # only scenarios tagged @smoke
  todoe2e run --suite ui --headless
  todoe2e run --report ./reports       # also write a JSON report per suite
  todoe2e run --fail-fast --verbose`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSuite, "suite", "all", "Suite to run (api, ui, all)")
	runCmd.Flags().StringVar(&runTags, "tags", "", "Tag expression selecting scenarios, e.g. '@smoke && ~@wip'")
	runCmd.Flags().StringSliceVar(&runFeatures, "features", nil, "Feature files or directories (default: <features dir>/<suite>)")
	runCmd.Flags().StringVar(&runReport, "report", "", "Directory to save a JSON report per suite")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Print one line per failure and a summary only")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the suite results as JSON")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print every step")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop after the first failed scenario")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser without a window (overrides browser.headless and HEADLESS)")
	runCmd.Flags().BoolVar(&runKeepEnv, "keep-env", false, "Leave started services running after the run")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "Overall run timeout")

	_ = runCmd.RegisterFlagCompletionFunc("suite", completeSuiteFlag)
	runCmd.MarkFlagsMutuallyExclusive("quiet", "json")
	runCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
}

// suitesFor expands the --suite value.
func suitesFor(name string) ([]string, error) {
	switch name {
	case "api":
		return []string{harness.SuiteAPI}, nil
	case "ui":
		return []string{harness.SuiteUI}, nil
	case "all", "":
		return []string{harness.SuiteAPI, harness.SuiteUI}, nil
	default:
		return nil, fmt.Errorf("invalid suite '%s', must be one of: api, ui, all", name)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	suites, err := suitesFor(runSuite)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, runTimeout)
	defer timeoutCancel()

	framework, err := harness.NewFramework(ctx, cfg, harness.Options{
		Suites:     suites,
		Paths:      runFeatures,
		Tags:       runTags,
		FailFast:   runFailFast,
		KeepEnv:    runKeepEnv,
		Verbose:    runVerbose,
		Quiet:      runQuiet,
		JSON:       runJSON,
		ReportPath: runReport,
		Output:     cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("failed to start test environment: %w", err)
	}
	defer func() {
		if err := framework.Cleanup(context.Background()); err != nil {
			logging.Error("CLI", err, "environment teardown failed")
		}
	}()

	results, err := framework.Run(ctx)
	if err != nil {
		return fmt.Errorf("test execution failed: %w", err)
	}
	if harness.AnyFailed(results) {
		return errScenariosFailed
	}
	return nil
}
