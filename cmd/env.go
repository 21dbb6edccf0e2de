package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"todoe2e/internal/color"
	"todoe2e/internal/compose"
	"todoe2e/internal/supervisor"
	"todoe2e/pkg/logging"
)

var envUI bool

func newEnvCmd() *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the test environment",
		Long: `Brings the database, backend and frontend up for manual test runs, or
stops the compose project hosting the test database.`,
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Start missing dependencies and wait for Ctrl+C",
		Long: `Starts whatever is not reachable yet: the database through docker
compose, the backend and, with --ui, the frontend. Blocks until interrupted,
then stops what it started.`,
		Args: cobra.NoArgs,
		RunE: runEnvUp,
	}
	upCmd.Flags().BoolVar(&envUI, "ui", false, "Also start the frontend dev server")

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the compose project and remove its volumes",
		Args:  cobra.NoArgs,
		RunE:  runEnvDown,
	}

	envCmd.AddCommand(upCmd, downCmd)
	return envCmd
}

func init() {
	rootCmd.AddCommand(newEnvCmd())
}

func runEnvUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sup := supervisor.New(cfg, supervisor.WithFrontend(envUI))
	env, err := sup.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start environment: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.IconText(color.IconPassed, fmt.Sprintf("database %s:%d/%s %s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, origin(env.Database != nil))))
	fmt.Fprintln(out, color.IconText(color.IconPassed, fmt.Sprintf("backend  %s %s",
		cfg.API.BaseURL, origin(env.Backend != nil))))
	if envUI {
		fmt.Fprintln(out, color.IconText(color.IconPassed, fmt.Sprintf("frontend %s %s",
			cfg.Frontend.BaseURL, origin(env.Frontend != nil))))
	}
	fmt.Fprintln(out, color.Muted.Render("Press Ctrl+C to stop."))

	exited := make(chan string, 2)
	for _, p := range []*supervisor.Process{env.Backend, env.Frontend} {
		if p != nil {
			go func() {
				<-p.Done()
				exited <- p.Name()
			}()
		}
	}

	select {
	case <-ctx.Done():
	case name := <-exited:
		logging.Warn("CLI", "%s exited, stopping the environment", name)
	}

	if err := sup.Teardown(context.Background(), env); err != nil {
		return fmt.Errorf("failed to stop environment: %w", err)
	}
	return nil
}

func origin(started bool) string {
	if started {
		return color.Info.Render("(started)")
	}
	return color.Muted.Render("(already running)")
}

func runEnvDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Compose.Enabled {
		return errors.New("compose is disabled in the configuration")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	exec, err := compose.NewShellExecutor(ctx, runtime.GOOS, cfg.Compose.ProjectDir)
	if err != nil {
		return err
	}
	if err := exec.Down(ctx, cfg.Compose.File); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.IconText(color.IconPassed, "compose services from "+cfg.Compose.File+" stopped"))
	return nil
}
