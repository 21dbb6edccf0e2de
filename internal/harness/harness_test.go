package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoe2e/internal/apiclient"
	"todoe2e/internal/browser/browsertest"
	"todoe2e/internal/config"
	"todoe2e/internal/fakeapp"
)

type appUsers struct {
	app *fakeapp.App
	api *apiclient.Client
}

func (u appUsers) Ensure(ctx context.Context, username, password string) error {
	u.app.Delete(username)
	resp, err := u.api.Post(ctx, "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": password,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New(string(resp.Body))
	}
	return nil
}

type appReset struct {
	app *fakeapp.App
	err error
	n   int
}

func (r *appReset) Reset(context.Context) error {
	r.n++
	if r.err != nil {
		return r.err
	}
	r.app.Reset()
	return nil
}

// fakeSession is a Session whose dependencies are in-memory fakes.
func fakeSession(t *testing.T) (*Session, *appReset) {
	t.Helper()
	app := fakeapp.New("test-secret")
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	cfg := config.GetDefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Features.Dir = filepath.Join("..", "..", "features")

	reset := &appReset{app: app}
	return &Session{
		cfg:      cfg,
		Resetter: reset,
		API:      apiclient.New(srv.URL),
		Users:    appUsers{app: app, api: apiclient.New(srv.URL)},
	}, reset
}

// recordingReporter keeps every callback for assertions.
type recordingReporter struct {
	started   []string
	steps     []StepResult
	scenarios []ScenarioResult
	suite     *SuiteResult
}

func (r *recordingReporter) ReportStart(Configuration) {}

func (r *recordingReporter) ReportScenarioStart(name string) {
	r.started = append(r.started, name)
}

func (r *recordingReporter) ReportStepResult(s StepResult) {
	r.steps = append(r.steps, s)
}

func (r *recordingReporter) ReportScenarioResult(s ScenarioResult) {
	r.scenarios = append(r.scenarios, s)
}

func (r *recordingReporter) ReportSuiteResult(s SuiteResult) {
	r.suite = &s
}

func TestRunner_ShippedAPIFeatures(t *testing.T) {
	session, reset := fakeSession(t)
	suite, err := session.Suite(SuiteAPI, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("..", "..", "features", "api")}, suite.Paths)

	rep := &recordingReporter{}
	result, err := NewRunner(rep).Run(context.Background(), suite)
	require.NoError(t, err)

	for _, sr := range result.ScenarioResults {
		assert.Equal(t, ResultPassed, sr.Result, "%s: %s", sr.Name, sr.Error)
	}
	assert.Equal(t, 6, result.TotalScenarios)
	assert.Equal(t, 6, result.PassedScenarios)
	assert.False(t, result.Failed())
	assert.Equal(t, 6, reset.n)
	assert.Len(t, rep.started, 6)
	require.NotNil(t, rep.suite)
	assert.Equal(t, "api", rep.suite.Name)
	assert.Contains(t, result.ScenarioResults[0].Tags, "@smoke")
}

func TestRunner_TagFilter(t *testing.T) {
	session, _ := fakeSession(t)
	suite, err := session.Suite(SuiteAPI, nil, "@smoke")
	require.NoError(t, err)

	result, err := NewRunner(&recordingReporter{}).Run(context.Background(), suite)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalScenarios)
}

func TestRunner_MixedResults(t *testing.T) {
	session, _ := fakeSession(t)
	suite, err := session.Suite(SuiteAPI, []string{"testdata/mixed.feature"}, "")
	require.NoError(t, err)

	rep := &recordingReporter{}
	result, err := NewRunner(rep).Run(context.Background(), suite)
	require.NoError(t, err)

	require.Len(t, result.ScenarioResults, 3)
	assert.True(t, result.Failed())
	assert.Equal(t, 1, result.PassedScenarios)
	assert.Equal(t, 1, result.FailedScenarios)
	assert.Equal(t, 1, result.ErrorScenarios)

	failed := result.ScenarioResults[1]
	assert.Equal(t, ResultFailed, failed.Result)
	assert.Contains(t, failed.Error, "expected status 401, got 200")
	require.GreaterOrEqual(t, len(failed.StepResults), 3)
	assert.Equal(t, ResultPassed, failed.StepResults[0].Result)
	assert.Equal(t, ResultFailed, failed.StepResults[2].Result)
	for _, st := range failed.StepResults[3:] {
		assert.Equal(t, ResultSkipped, st.Result, "steps after a failure do not run")
	}

	assert.Equal(t, ResultError, result.ScenarioResults[2].Result)
}

func TestRunner_SetupFailureIsError(t *testing.T) {
	session, reset := fakeSession(t)
	reset.err = errors.New("connection refused")
	suite, err := session.Suite(SuiteAPI, nil, "")
	require.NoError(t, err)

	result, err := NewRunner(&recordingReporter{}).Run(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, 6, result.ErrorScenarios, "every scenario still runs its setup")
	assert.Equal(t, 0, result.FailedScenarios)
	assert.Contains(t, result.ScenarioResults[0].Error, "connection refused")
}

func TestRunner_FailFast(t *testing.T) {
	session, _ := fakeSession(t)
	suite, err := session.Suite(SuiteAPI, []string{"testdata/mixed.feature"}, "")
	require.NoError(t, err)

	result, err := NewRunner(&recordingReporter{}, WithFailFast(true)).Run(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalScenarios, "stops after the first failed scenario")
	assert.True(t, result.Configuration.FailFast)
}

func TestRunner_MissingPath(t *testing.T) {
	session, _ := fakeSession(t)
	suite, err := session.Suite(SuiteAPI, []string{"testdata/nope"}, "")
	require.NoError(t, err)

	_, err = NewRunner(&recordingReporter{}).Run(context.Background(), suite)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSession_Suite(t *testing.T) {
	session, _ := fakeSession(t)

	_, err := session.Suite("perf", nil, "")
	assert.ErrorContains(t, err, `unknown suite "perf"`)

	_, err = session.Suite(SuiteUI, nil, "")
	assert.ErrorContains(t, err, "needs a session started with a browser")

	session.Browser = browsertest.New()
	suite, err := session.Suite(SuiteUI, nil, "@smoke")
	require.NoError(t, err)
	assert.Equal(t, "@smoke", suite.Tags)
	assert.Equal(t, []string{filepath.Join("..", "..", "features", "ui")}, suite.Paths)
}

func TestSession_Close(t *testing.T) {
	session, _ := fakeSession(t)
	fake := browsertest.New()
	session.Browser = fake

	require.NoError(t, session.Close(context.Background()))
	assert.True(t, fake.Closed)
}

func sampleResult() SuiteResult {
	return SuiteResult{
		Name:            "api",
		TotalScenarios:  2,
		PassedScenarios: 1,
		FailedScenarios: 1,
		ScenarioResults: []ScenarioResult{
			{Name: "成功登录", Result: ResultPassed},
			{Name: "wrong password", Result: ResultFailed, Error: "expected status 401, got 200\ndetails"},
		},
	}
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	r := NewConsoleReporter(&buf, true, dir)

	r.ReportStart(Configuration{Suite: "api", Paths: []string{"features/api"}})
	r.ReportScenarioStart("成功登录")
	r.ReportStepResult(StepResult{Text: "响应状态码应该是 200", Result: ResultFailed, Error: "expected status 200, got 401"})
	r.ReportSuiteResult(sampleResult())

	out := buf.String()
	assert.Contains(t, out, "Running api suite")
	assert.Contains(t, out, "Tags: all")
	assert.Contains(t, out, "expected status 200, got 401")
	assert.Contains(t, out, "成功登录       PASSED", "names padded by display width")
	assert.Contains(t, out, "wrong password FAILED")
	assert.NotContains(t, out, "details", "only the first error line in the summary")
	assert.Contains(t, out, "Success Rate: 50.0%")
	assert.Contains(t, out, "Some scenarios failed")
	assert.Contains(t, out, "Detailed report saved to")

	files, err := filepath.Glob(filepath.Join(dir, "todoe2e-api-report-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var saved SuiteResult
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 1, saved.FailedScenarios)
}

func TestQuietReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewQuietReporter(&buf)

	r.ReportScenarioResult(ScenarioResult{Name: "成功登录", Result: ResultPassed})
	r.ReportScenarioResult(ScenarioResult{Name: "密码错误", Result: ResultFailed, Error: "boom"})
	r.ReportSuiteResult(sampleResult())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"❌ 密码错误: boom", "❌ api: 1/2 scenarios failed"}, lines)

	buf.Reset()
	r.ReportSuiteResult(SuiteResult{Name: "ui", TotalScenarios: 3, PassedScenarios: 3})
	assert.Equal(t, "✅ ui: all 3 scenarios passed\n", buf.String())
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	NewJSONReporter(&buf).ReportSuiteResult(sampleResult())

	var got SuiteResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "api", got.Name)
	assert.Len(t, got.ScenarioResults, 2)
}

func TestNewReporter(t *testing.T) {
	assert.IsType(t, &jsonReporter{}, NewReporter(Options{JSON: true, Quiet: true}))
	assert.IsType(t, &quietReporter{}, NewReporter(Options{Quiet: true}))
	assert.IsType(t, &consoleReporter{}, NewReporter(Options{}))
}

func TestNewFramework_RejectsSuites(t *testing.T) {
	_, err := NewFramework(context.Background(), config.GetDefaultConfig(), Options{})
	assert.ErrorContains(t, err, "no suite selected")

	_, err = NewFramework(context.Background(), config.GetDefaultConfig(), Options{Suites: []string{"load"}})
	assert.ErrorContains(t, err, `unknown suite "load"`)
}

func TestFramework_Run(t *testing.T) {
	session, _ := fakeSession(t)
	var buf bytes.Buffer
	opts := Options{Suites: []string{SuiteAPI}, Quiet: true, Output: &buf}
	rep := NewReporter(opts)
	f := &Framework{Runner: newRunnerFor(rep, opts), Reporter: rep, Session: session, opts: opts}

	results, err := f.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, AnyFailed(results))
	assert.Equal(t, "✅ api: all 6 scenarios passed\n", buf.String())

	assert.NoError(t, f.Cleanup(context.Background()))
}
