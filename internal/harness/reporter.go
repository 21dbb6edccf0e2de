package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"todoe2e/internal/color"
)

// consoleReporter prints progress and a summary for humans.
type consoleReporter struct {
	w          io.Writer
	verbose    bool
	reportPath string
}

// NewConsoleReporter creates a reporter writing to w. When reportPath is set
// the suite result is also saved there as JSON.
func NewConsoleReporter(w io.Writer, verbose bool, reportPath string) Reporter {
	return &consoleReporter{w: w, verbose: verbose, reportPath: reportPath}
}

func (r *consoleReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.w, format, args...)
}

// ReportStart is called when the suite begins
func (r *consoleReporter) ReportStart(config Configuration) {
	r.printf("%s\n", color.Title.Render(color.IconText("🧪", fmt.Sprintf("Running %s suite", config.Suite))))

	if r.verbose {
		r.printf("   • Features: %s\n", strings.Join(config.Paths, ", "))
		r.printf("   • Tags: %s\n", stringOrDefault(config.Tags, "all"))
		r.printf("   • Fail fast: %t\n", config.FailFast)
		if config.ReportPath != "" {
			r.printf("   • Report path: %s\n", config.ReportPath)
		}
		r.printf("\n")
	}
}

// ReportScenarioStart is called when a scenario begins
func (r *consoleReporter) ReportScenarioStart(name string) {
	if r.verbose {
		r.printf("🎯 %s\n", name)
	} else {
		r.printf("🎯 %s... ", name)
	}
}

// ReportStepResult is called when a step completes
func (r *consoleReporter) ReportStepResult(stepResult StepResult) {
	if !r.verbose {
		return
	}
	r.printf("   %s (%v)\n", styled(stepResult.Result, stepResult.Text), stepResult.Duration.Round(time.Millisecond))
	if stepResult.Error != "" {
		r.printf("     %s\n", color.Failed.Render("Error: "+stepResult.Error))
	}
}

// ReportScenarioResult is called when a scenario completes
func (r *consoleReporter) ReportScenarioResult(scenarioResult ScenarioResult) {
	duration := scenarioResult.Duration.Round(time.Millisecond)
	if !r.verbose {
		r.printf("%s (%v)\n", symbol(scenarioResult.Result), duration)
		return
	}

	passed, failed, errored := 0, 0, 0
	for _, st := range scenarioResult.StepResults {
		switch st.Result {
		case ResultPassed:
			passed++
		case ResultFailed:
			failed++
		case ResultError:
			errored++
		}
	}
	r.printf("%s (%v)\n", styled(scenarioResult.Result, "Scenario completed: "+scenarioResult.Name), duration)
	r.printf("   📊 Steps: %d passed", passed)
	if failed > 0 {
		r.printf(", %d failed", failed)
	}
	if errored > 0 {
		r.printf(", %d errors", errored)
	}
	r.printf("\n\n")
}

// ReportSuiteResult prints the summary table and saves the JSON report.
func (r *consoleReporter) ReportSuiteResult(suiteResult SuiteResult) {
	r.printf("\n%s\n", color.Title.Render(color.IconText("🏁", fmt.Sprintf("%s suite complete", suiteResult.Name))))
	r.printf("⏱️  Duration: %v\n", suiteResult.Duration.Round(time.Millisecond))

	if len(suiteResult.ScenarioResults) > 0 {
		width := 0
		for _, sr := range suiteResult.ScenarioResults {
			width = max(width, color.Width(sr.Name))
		}
		for _, sr := range suiteResult.ScenarioResults {
			line := fmt.Sprintf("   %s %s", color.PadRight(sr.Name, width), sr.Result)
			r.printf("%s\n", styleFor(sr.Result).Render(line))
			if sr.Error != "" && sr.Result != ResultPassed {
				r.printf("      %s\n", color.Muted.Render(firstLine(sr.Error)))
			}
		}
	}

	r.printf("📊 Results:\n")
	r.printf("   %s\n", color.Passed.Render(fmt.Sprintf("✅ Passed: %d", suiteResult.PassedScenarios)))
	if suiteResult.FailedScenarios > 0 {
		r.printf("   %s\n", color.Failed.Render(fmt.Sprintf("❌ Failed: %d", suiteResult.FailedScenarios)))
	}
	if suiteResult.ErrorScenarios > 0 {
		r.printf("   %s\n", color.Errored.Render(fmt.Sprintf("💥 Errors: %d", suiteResult.ErrorScenarios)))
	}
	if suiteResult.SkippedScenarios > 0 {
		r.printf("   %s\n", color.Skipped.Render(fmt.Sprintf("⏭️  Skipped: %d", suiteResult.SkippedScenarios)))
	}
	r.printf("   📈 Total: %d\n", suiteResult.TotalScenarios)

	successRate := 0.0
	if suiteResult.TotalScenarios > 0 {
		successRate = float64(suiteResult.PassedScenarios) / float64(suiteResult.TotalScenarios) * 100
	}
	r.printf("   📏 Success Rate: %.1f%%\n", successRate)

	if suiteResult.Failed() {
		r.printf("\n💔 Some scenarios failed\n")
	} else {
		r.printf("\n🎉 All scenarios passed!\n")
	}

	if r.reportPath != "" {
		path, err := SaveReport(r.reportPath, suiteResult)
		if err != nil {
			r.printf("⚠️  Failed to save detailed report: %v\n", err)
		} else {
			r.printf("📄 Detailed report saved to: %s\n", path)
		}
	}
}

// SaveReport writes suiteResult as indented JSON into dir and returns the
// file's path.
func SaveReport(dir string, suiteResult SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("todoe2e-%s-report-%s.json", suiteResult.Name, suiteResult.StartTime.Format("20060102-150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(suiteResult, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func symbol(result Result) string {
	switch result {
	case ResultPassed:
		return color.IconPassed
	case ResultFailed:
		return color.IconFailed
	case ResultSkipped:
		return color.IconSkipped
	case ResultError:
		return color.IconError
	default:
		return color.IconUnknown
	}
}

func styleFor(result Result) interface{ Render(...string) string } {
	switch result {
	case ResultPassed:
		return color.Passed
	case ResultFailed:
		return color.Failed
	case ResultError:
		return color.Errored
	default:
		return color.Skipped
	}
}

func styled(result Result, text string) string {
	return styleFor(result).Render(color.IconText(symbol(result), text))
}

func stringOrDefault(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// NewQuietReporter creates a reporter that only prints failures and a one
// line summary, for CI logs.
func NewQuietReporter(w io.Writer) Reporter {
	return &quietReporter{w: w}
}

type quietReporter struct {
	w io.Writer
}

func (r *quietReporter) ReportStart(Configuration)   {}
func (r *quietReporter) ReportScenarioStart(string)  {}
func (r *quietReporter) ReportStepResult(StepResult) {}

func (r *quietReporter) ReportScenarioResult(scenarioResult ScenarioResult) {
	if scenarioResult.Result == ResultFailed || scenarioResult.Result == ResultError {
		fmt.Fprintf(r.w, "%s %s: %s\n", symbol(scenarioResult.Result), scenarioResult.Name, firstLine(scenarioResult.Error))
	}
}

func (r *quietReporter) ReportSuiteResult(suiteResult SuiteResult) {
	if suiteResult.Failed() {
		fmt.Fprintf(r.w, "❌ %s: %d/%d scenarios failed\n", suiteResult.Name,
			suiteResult.FailedScenarios+suiteResult.ErrorScenarios, suiteResult.TotalScenarios)
		return
	}
	fmt.Fprintf(r.w, "✅ %s: all %d scenarios passed\n", suiteResult.Name, suiteResult.PassedScenarios)
}

// NewJSONReporter creates a reporter that prints the suite result as JSON
// once the suite completes.
func NewJSONReporter(w io.Writer) Reporter {
	return &jsonReporter{w: w}
}

type jsonReporter struct {
	w io.Writer
}

func (r *jsonReporter) ReportStart(Configuration)           {}
func (r *jsonReporter) ReportScenarioStart(string)          {}
func (r *jsonReporter) ReportStepResult(StepResult)         {}
func (r *jsonReporter) ReportScenarioResult(ScenarioResult) {}

func (r *jsonReporter) ReportSuiteResult(suiteResult SuiteResult) {
	data, err := json.MarshalIndent(suiteResult, "", "  ")
	if err != nil {
		fmt.Fprintf(r.w, `{"error": "Failed to marshal results: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.w, string(data))
}
