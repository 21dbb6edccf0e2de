// Package harness runs the Gherkin suites against a started environment.
//
// A run has three parts:
//
//   - Session: the supervisor's environment, the database pool, the API
//     clients and, for the UI suite, the browser. Started once per run.
//   - Runner: executes one suite through godog and collects step and
//     scenario results from godog's hooks.
//   - Reporter: console, quiet or JSON output of those results, plus an
//     optional JSON report file.
//
// Framework assembles the three for the CLI and for the go test entry
// points under suites/.
package harness
