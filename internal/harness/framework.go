package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"

	"todoe2e/internal/config"
	"todoe2e/internal/supervisor"
)

// Options select the suites, reporting and environment of a run.
type Options struct {
	Suites   []string
	Paths    []string // overrides the per-suite feature directory
	Tags     string
	FailFast bool
	KeepEnv  bool

	Verbose    bool
	Quiet      bool
	JSON       bool
	ReportPath string
	Output     io.Writer

	TestingT          *testing.T
	SupervisorOptions []supervisor.Option
}

// Framework holds all components needed for a run
type Framework struct {
	Runner   *Runner
	Reporter Reporter
	Session  *Session

	opts Options
}

// NewFramework starts a session and wires runner and reporter for opts.
func NewFramework(ctx context.Context, cfg config.Config, opts Options) (*Framework, error) {
	if len(opts.Suites) == 0 {
		return nil, fmt.Errorf("no suite selected")
	}
	for _, name := range opts.Suites {
		if name != SuiteAPI && name != SuiteUI {
			return nil, fmt.Errorf("unknown suite %q", name)
		}
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	withUI := false
	for _, name := range opts.Suites {
		withUI = withUI || name == SuiteUI
	}

	session, err := StartSession(ctx, cfg, SessionOptions{
		WithUI:            withUI,
		KeepEnv:           opts.KeepEnv,
		SupervisorOptions: opts.SupervisorOptions,
	})
	if err != nil {
		return nil, err
	}

	reporter := NewReporter(opts)
	return &Framework{
		Runner:   newRunnerFor(reporter, opts),
		Reporter: reporter,
		Session:  session,
		opts:     opts,
	}, nil
}

// NewReporter picks the reporter opts ask for.
func NewReporter(opts Options) Reporter {
	w := opts.Output
	if w == nil {
		w = os.Stdout
	}
	switch {
	case opts.JSON:
		return NewJSONReporter(w)
	case opts.Quiet:
		return NewQuietReporter(w)
	default:
		return NewConsoleReporter(w, opts.Verbose, opts.ReportPath)
	}
}

func newRunnerFor(reporter Reporter, opts Options) *Runner {
	runnerOpts := []RunnerOption{
		WithFailFast(opts.FailFast),
		WithVerbose(opts.Verbose),
		WithReportPath(opts.ReportPath),
	}
	if opts.TestingT != nil {
		runnerOpts = append(runnerOpts, WithTestingT(opts.TestingT))
	}
	return NewRunner(reporter, runnerOpts...)
}

// Run executes every selected suite in order. With FailFast a failed suite
// stops the run.
func (f *Framework) Run(ctx context.Context) ([]*SuiteResult, error) {
	var results []*SuiteResult
	for _, name := range f.opts.Suites {
		suite, err := f.Session.Suite(name, f.opts.Paths, f.opts.Tags)
		if err != nil {
			return results, err
		}
		result, err := f.Runner.Run(ctx, suite)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if f.opts.FailFast && result.Failed() {
			break
		}
	}
	return results, nil
}

// Cleanup closes the session.
func (f *Framework) Cleanup(ctx context.Context) error {
	return f.Session.Close(ctx)
}

// AnyFailed reports whether any of results has a failed scenario.
func AnyFailed(results []*SuiteResult) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}
