package harness

import (
	"time"
)

// Result is the outcome of a step, a scenario or a suite.
type Result string

const (
	// ResultPassed indicates the test passed successfully
	ResultPassed Result = "PASSED"
	// ResultFailed indicates an assertion failed
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the step did not run
	ResultSkipped Result = "SKIPPED"
	// ResultError indicates setup failed or a step is undefined
	ResultError Result = "ERROR"
)

// Configuration describes one run of the runner.
type Configuration struct {
	// Suite is the name of the suite, "api" or "ui"
	Suite string `json:"suite"`
	// Paths are the feature files or directories
	Paths []string `json:"paths"`
	// Tags is a godog tag expression, e.g. "@smoke && ~@wip"
	Tags string `json:"tags,omitempty"`
	// FailFast stops after the first failed scenario
	FailFast bool `json:"fail_fast"`
	// Verbose prints every step
	Verbose bool `json:"verbose"`
	// ReportPath is the directory the JSON report is written to
	ReportPath string `json:"report_path,omitempty"`
}

// SuiteResult represents the overall result of one suite
type SuiteResult struct {
	Name      string        `json:"name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	TotalScenarios   int `json:"total_scenarios"`
	PassedScenarios  int `json:"passed_scenarios"`
	FailedScenarios  int `json:"failed_scenarios"`
	SkippedScenarios int `json:"skipped_scenarios"`
	ErrorScenarios   int `json:"error_scenarios"`

	ScenarioResults []ScenarioResult `json:"scenario_results"`
	Configuration   Configuration    `json:"configuration"`
}

// Failed reports whether any scenario failed or errored.
func (r *SuiteResult) Failed() bool {
	return r.FailedScenarios > 0 || r.ErrorScenarios > 0
}

// ScenarioResult represents the result of a single scenario
type ScenarioResult struct {
	Name string `json:"name"`
	// URI of the feature file the scenario came from
	URI         string        `json:"uri"`
	Tags        []string      `json:"tags,omitempty"`
	Result      Result        `json:"result"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	StepResults []StepResult  `json:"step_results"`
	// Error of the first step that did not pass
	Error string `json:"error,omitempty"`
}

// StepResult represents the result of a single step
type StepResult struct {
	Text     string        `json:"text"`
	Result   Result        `json:"result"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Reporter receives results while a suite runs.
type Reporter interface {
	// ReportStart is called when the suite begins
	ReportStart(config Configuration)
	// ReportScenarioStart is called when a scenario begins
	ReportScenarioStart(name string)
	// ReportStepResult is called when a step completes
	ReportStepResult(stepResult StepResult)
	// ReportScenarioResult is called when a scenario completes
	ReportScenarioResult(scenarioResult ScenarioResult)
	// ReportSuiteResult is called when all scenarios completed
	ReportSuiteResult(suiteResult SuiteResult)
}
