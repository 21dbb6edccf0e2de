package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"todoe2e/internal/scenario"
	"todoe2e/pkg/logging"
)

// Suite is a set of feature files plus the steps they use.
type Suite struct {
	Name        string
	Paths       []string
	Tags        string
	Initializer func(*godog.ScenarioContext)
}

// Runner executes suites with godog and collects their results.
type Runner struct {
	reporter Reporter
	failFast bool
	verbose  bool
	report   string

	format   string
	output   io.Writer
	testingT *testing.T
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFailFast stops a suite after its first failed scenario.
func WithFailFast(enabled bool) RunnerOption {
	return func(r *Runner) { r.failFast = enabled }
}

// WithVerbose is recorded in the run configuration for reporters.
func WithVerbose(enabled bool) RunnerOption {
	return func(r *Runner) { r.verbose = enabled }
}

// WithReportPath is recorded in the run configuration for reporters.
func WithReportPath(dir string) RunnerOption {
	return func(r *Runner) { r.report = dir }
}

// WithGodogOutput lets godog write its own formatter output to w.
func WithGodogOutput(format string, w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.format = format
		r.output = w
	}
}

// WithTestingT runs every scenario as a subtest of t.
func WithTestingT(t *testing.T) RunnerOption {
	return func(r *Runner) { r.testingT = t }
}

// NewRunner returns a runner reporting to reporter.
func NewRunner(reporter Reporter, opts ...RunnerOption) *Runner {
	r := &Runner{
		reporter: reporter,
		format:   "progress",
		output:   io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes suite. Scenario failures are reported in the result, not
// as an error; an error means the suite could not run at all.
func (r *Runner) Run(ctx context.Context, suite Suite) (*SuiteResult, error) {
	for _, p := range suite.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("feature path %s: %w", p, err)
		}
	}

	cfg := Configuration{
		Suite:      suite.Name,
		Paths:      suite.Paths,
		Tags:       suite.Tags,
		FailFast:   r.failFast,
		Verbose:    r.verbose,
		ReportPath: r.report,
	}
	result := &SuiteResult{
		Name:            suite.Name,
		StartTime:       time.Now(),
		ScenarioResults: []ScenarioResult{},
		Configuration:   cfg,
	}
	c := &collector{reporter: r.reporter}

	r.reporter.ReportStart(cfg)
	logging.Info("Harness", "running %s suite from %v", suite.Name, suite.Paths)

	status := godog.TestSuite{
		Name: suite.Name,
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			c.register(sc)
			suite.Initializer(sc)
		},
		Options: &godog.Options{
			Format:         r.format,
			Output:         r.output,
			Paths:          suite.Paths,
			Tags:           suite.Tags,
			Strict:         true,
			StopOnFailure:  r.failFast,
			TestingT:       r.testingT,
			DefaultContext: ctx,
		},
	}.Run()

	c.finish(result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	// godog uses 2 for invalid options; 1 is covered by the results.
	if status > 1 {
		return nil, fmt.Errorf("%s suite: godog exited with status %d", suite.Name, status)
	}
	if status == 1 && !result.Failed() {
		return nil, fmt.Errorf("%s suite failed without a failing scenario; check the feature files", suite.Name)
	}

	r.reporter.ReportSuiteResult(*result)
	return result, nil
}

// collector turns godog hook calls into results. Scenarios run one at a
// time, so steps always belong to the most recently started scenario.
type collector struct {
	reporter Reporter

	mu        sync.Mutex
	scenarios []*collected
	stepStart time.Time
}

type collected struct {
	ScenarioResult
	hookErr  error
	reported bool
}

func (c *collector) current() *collected {
	if len(c.scenarios) == 0 {
		return nil
	}
	return c.scenarios[len(c.scenarios)-1]
}

func (c *collector) register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		tags := make([]string, 0, len(s.Tags))
		for _, t := range s.Tags {
			tags = append(tags, t.Name)
		}

		c.mu.Lock()
		c.scenarios = append(c.scenarios, &collected{ScenarioResult: ScenarioResult{
			Name:        s.Name,
			URI:         s.Uri,
			Tags:        tags,
			StartTime:   time.Now(),
			StepResults: []StepResult{},
		}})
		c.stepStart = time.Now()
		c.mu.Unlock()

		c.reporter.ReportScenarioStart(s.Name)
		return ctx, nil
	})

	sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
		c.mu.Lock()
		c.stepStart = time.Now()
		c.mu.Unlock()
		return ctx, nil
	})

	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		c.mu.Lock()
		step := StepResult{
			Text:     st.Text,
			Result:   stepResult(status, err),
			Duration: time.Since(c.stepStart),
		}
		if err != nil {
			step.Error = err.Error()
		}
		if cur := c.current(); cur != nil {
			cur.StepResults = append(cur.StepResults, step)
		}
		c.mu.Unlock()

		c.reporter.ReportStepResult(step)
		return ctx, nil
	})

	// godog may call this before the remaining skipped steps are recorded,
	// so the outcome is derived again in finish.
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		c.mu.Lock()
		cur := c.current()
		if cur == nil {
			c.mu.Unlock()
			return ctx, nil
		}
		if err != nil && cur.hookErr == nil {
			cur.hookErr = err
		}
		cur.EndTime = time.Now()
		cur.Duration = cur.EndTime.Sub(cur.StartTime)
		cur.Result, cur.Error = scenarioResult(cur.StepResults, cur.hookErr)
		report := !cur.reported
		cur.reported = true
		snapshot := cur.ScenarioResult
		c.mu.Unlock()

		if report {
			c.reporter.ReportScenarioResult(snapshot)
		}
		return ctx, nil
	})
}

// finish fills suite with the final per-scenario outcomes and counters.
func (c *collector) finish(suite *SuiteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cur := range c.scenarios {
		cur.Result, cur.Error = scenarioResult(cur.StepResults, cur.hookErr)
		if cur.EndTime.IsZero() {
			cur.EndTime = time.Now()
			cur.Duration = cur.EndTime.Sub(cur.StartTime)
		}
		suite.ScenarioResults = append(suite.ScenarioResults, cur.ScenarioResult)
		suite.TotalScenarios++
		switch cur.Result {
		case ResultPassed:
			suite.PassedScenarios++
		case ResultFailed:
			suite.FailedScenarios++
		case ResultSkipped:
			suite.SkippedScenarios++
		case ResultError:
			suite.ErrorScenarios++
		}
	}
}

func stepResult(status godog.StepResultStatus, err error) Result {
	switch status {
	case godog.StepPassed:
		return ResultPassed
	case godog.StepSkipped:
		return ResultSkipped
	case godog.StepFailed:
		if isSetupFailure(err) {
			return ResultError
		}
		return ResultFailed
	default:
		// undefined, pending or ambiguous step definitions
		return ResultError
	}
}

// scenarioResult derives the scenario outcome from its steps: the first step
// that did not pass decides it.
func scenarioResult(steps []StepResult, err error) (Result, string) {
	for _, st := range steps {
		switch st.Result {
		case ResultFailed, ResultError:
			msg := st.Error
			if msg == "" {
				msg = fmt.Sprintf("step %q is not implemented", st.Text)
			}
			return st.Result, msg
		}
	}
	if err != nil {
		if isSetupFailure(err) || errors.Is(err, godog.ErrUndefined) || errors.Is(err, godog.ErrPending) {
			return ResultError, err.Error()
		}
		return ResultFailed, err.Error()
	}
	if len(steps) > 0 && allSkipped(steps) {
		return ResultSkipped, ""
	}
	return ResultPassed, ""
}

func allSkipped(steps []StepResult) bool {
	for _, st := range steps {
		if st.Result != ResultSkipped {
			return false
		}
	}
	return true
}

// isSetupFailure also matches on the message, since godog may flatten hook
// errors when several Before hooks fail.
func isSetupFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, scenario.ErrSetup) || strings.Contains(err.Error(), scenario.ErrSetup.Error())
}
