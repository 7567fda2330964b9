package cli

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/genload/internal/stub"
)

// execute runs the command line in an isolated HOME and returns stdout and
// stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GENLOAD_HOST", "")

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func stubServer(t *testing.T, opts stub.Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stub.New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

const fastStages = "300ms:2,300ms:2,200ms:0"

func TestRun_JSONAndHistory(t *testing.T) {
	srv := stubServer(t, stub.Options{})
	history := filepath.Join(t.TempDir(), "history.db")

	out, stderr, err := execute(t, "run",
		"--host", srv.URL,
		"--stages", fastStages,
		"--pause", "10ms",
		"--progress-interval", "100ms",
		"--history", history,
		"--json",
	)
	require.NoError(t, err, stderr)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result), "stdout must be only the JSON result")
	assert.Equal(t, true, result["passed"])
	runID, _ := result["runId"].(string)
	require.NotEmpty(t, runID)

	assert.Contains(t, stderr, "generate - Completed ✓")
	assert.Contains(t, stderr, "is status 200")

	out, _, err = execute(t, "history", "--history", history)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "PASS")

	out, _, err = execute(t, "history", "show", runID, "--history", history)
	require.NoError(t, err)
	assert.Contains(t, out, `"passed": true`)

	_, _, err = execute(t, "history", "delete", runID, "--history", history)
	require.NoError(t, err)

	out, _, err = execute(t, "history", "--history", history)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestRun_FailedThresholds(t *testing.T) {
	srv := stubServer(t, stub.Options{Status: http.StatusInternalServerError})
	dir := t.TempDir()

	scenarioFile := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioFile, []byte(`
name: failing
target:
  host: "`+srv.URL+`"
stages:
  - {duration: 300ms, target: 2}
  - {duration: 200ms, target: 0}
pause: 10ms
thresholds:
  checks: ["rate > 0.9"]
`), 0o644))

	report := filepath.Join(dir, "out", "report.xml")
	out, _, err := execute(t, "run", scenarioFile,
		"--no-history",
		"--progress-interval", "100ms",
		"--output", report,
	)
	assert.True(t, errors.Is(err, ErrRunFailed), "got %v", err)
	assert.Contains(t, out, "failing - Failed ✗")
	assert.Contains(t, out, "✗ checks rate > 0.9")

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<testsuites>")
	assert.Contains(t, string(data), "ThresholdFailure")
}

func TestRun_ConstantVUsQuiet(t *testing.T) {
	srv := stubServer(t, stub.Options{})

	out, _, err := execute(t, "run",
		"--host", srv.URL,
		"--vus", "2",
		"--duration", "300ms",
		"--pause", "0",
		"--quiet",
		"--no-history",
	)
	require.NoError(t, err)
	assert.Equal(t, "PASSED", strings.TrimSpace(out))
}

func TestRun_StoppedEarlyFails(t *testing.T) {
	srv := stubServer(t, stub.Options{})
	history := filepath.Join(t.TempDir(), "history.db")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(500*time.Millisecond, cancel)

	start := time.Now()
	out, stderr, err := executeContext(t, ctx, "run",
		"--host", srv.URL,
		"--stages", "1m:2",
		"--pause", "10ms",
		"--progress-interval", "100ms",
		"--history", history,
		"--json",
	)
	assert.True(t, errors.Is(err, ErrRunFailed), "got %v", err)
	assert.Less(t, time.Since(start), 30*time.Second)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result), stderr)
	assert.Equal(t, false, result["passed"])
	assert.Equal(t, "run stopped before completion", result["error"])

	out, _, err = execute(t, "history", "--history", history)
	require.NoError(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestRun_MissingHost(t *testing.T) {
	_, _, err := execute(t, "run", "--no-history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestRun_FlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"stages and vus", []string{"--stages", "1s:1", "--vus", "1", "--duration", "1s"}, "cannot be combined"},
		{"vus alone", []string{"--vus", "2"}, "must be given together"},
		{"bad stages", []string{"--stages", "soon:1"}, "invalid --stages"},
		{"bad pause", []string{"--pause", "later"}, "invalid --pause"},
		{"bad duration", []string{"--vus", "1", "--duration", "x"}, "invalid --duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--host", "localhost:1", "--no-history"}, tt.args...)
			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInspect_Defaults(t *testing.T) {
	out, _, err := execute(t, "inspect", "--host", "10.0.0.5:8000")
	require.NoError(t, err)

	for _, want := range []string{
		"Target:   POST http://10.0.0.5:8000/generate",
		"Executor: ramping-vus",
		"Stages:   30s:10,1m0s:10,30s:0",
		"Duration: 2m0s (peak 10 VUs)",
		"Pause:    1s",
		`Payload:  {"prompt":"Hello World","options":{"num_tokens":10}}`,
		"  - is status 200",
	} {
		assert.Contains(t, out, want)
	}
}

func TestInspect_HostFromEnvAndOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GENLOAD_HOST", "gen.internal:9000")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"inspect", "--prompt", "Why is the sky blue?", "--num-tokens", "64", "--path", "/api/generate"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "http://gen.internal:9000/api/generate")
	assert.Contains(t, out.String(), `"prompt":"Why is the sky blue?"`)
	assert.Contains(t, out.String(), `"num_tokens":64`)
}

func TestSettingsFile(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "genload.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("host: settings-host:8000\nlog-level: debug\n"), 0o644))

	out, stderr, err := execute(t, "inspect", "--config", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "http://settings-host:8000/generate")
	assert.Contains(t, stderr, "settings loaded")

	_, _, err = execute(t, "inspect", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggingFlags(t *testing.T) {
	_, _, err := execute(t, "inspect", "--host", "h:1", "--log-level", "loud")
	assert.ErrorContains(t, err, "--log-level")

	_, _, err = execute(t, "inspect", "--host", "h:1", "--log-format", "xml")
	assert.ErrorContains(t, err, "--log-format")

	_, stderr, err := execute(t, "inspect", "--host", "h:1", "--log-level", "debug", "--log-format", "json", "--config", "")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		if line == "" {
			continue
		}
		assert.True(t, json.Valid([]byte(line)), "not JSON: %s", line)
	}
}

func TestProbe(t *testing.T) {
	srv := stubServer(t, stub.Options{})

	out, _, err := execute(t, "probe", "--host", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, `"done":true`)
	assert.Contains(t, out, "✓ is status 200")

	failing := stubServer(t, stub.Options{Status: http.StatusServiceUnavailable})
	out, _, err = execute(t, "probe", "--host", failing.URL)
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, out, "✗ is status 200")
}

func TestProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, _, err := execute(t, "probe", "--host", url, "--timeout", "2s")
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, out, "Error:")
}
