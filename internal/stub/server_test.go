package stub_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/metrics"
	"github.com/wesleyorama2/genload/internal/scenario"
	"github.com/wesleyorama2/genload/internal/stub"
)

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerate(t *testing.T) {
	s := stub.New(stub.Options{})
	rec := post(t, s.Handler(), "/generate", `{"prompt":"Hello World","options":{"num_tokens":10}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp stub.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, stub.DefaultModel, resp.Model)
	assert.True(t, resp.Done)
	assert.Equal(t, 10, resp.EvalCount)
	assert.Len(t, strings.Fields(resp.Response), 10)
	assert.Equal(t, int64(1), s.Requests())
	assert.Equal(t, int64(0), s.Failures())
}

func TestGenerate_ModelFromRequest(t *testing.T) {
	s := stub.New(stub.Options{Model: "tiny"})

	rec := post(t, s.Handler(), "/generate", `{"prompt":"hi","options":{"num_tokens":1}}`)
	assert.Contains(t, rec.Body.String(), `"model":"tiny"`)

	rec = post(t, s.Handler(), "/generate", `{"model":"llama3","prompt":"hi","options":{"num_tokens":1}}`)
	assert.Contains(t, rec.Body.String(), `"model":"llama3"`)
}

func TestGenerate_BadRequests(t *testing.T) {
	s := stub.New(stub.Options{})

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"malformed json", "/generate", `{"prompt":`},
		{"empty prompt", "/generate", `{"prompt":"  "}`},
		{"bad status", "/generate?status=abc", `{"prompt":"hi"}`},
		{"bad delay", "/generate?delay=soon", `{"prompt":"hi"}`},
		{"negative num_tokens", "/generate", `{"prompt":"hi","options":{"num_tokens":-1}}`},
		{"num_tokens over limit", "/generate", `{"prompt":"hi","options":{"num_tokens":1000000}}`},
		{"negative num_tokens streamed", "/generate", `{"prompt":"hi","stream":true,"options":{"num_tokens":-5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s.Handler(), tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Equal(t, int64(7), s.Failures())
}

func TestGenerate_FaultInjection(t *testing.T) {
	s := stub.New(stub.Options{Status: http.StatusServiceUnavailable})

	rec := post(t, s.Handler(), "/generate", `{"prompt":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = post(t, s.Handler(), "/generate?status=200", `{"prompt":"hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "query overrides options")

	rec = post(t, s.Handler(), "/generate?status=429", `{"prompt":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGenerate_Delay(t *testing.T) {
	s := stub.New(stub.Options{Delay: 50 * time.Millisecond})

	start := time.Now()
	post(t, s.Handler(), "/generate", `{"prompt":"hi"}`)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	post(t, s.Handler(), "/generate?delay=0", `{"prompt":"hi"}`)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestGenerate_Stream(t *testing.T) {
	s := stub.New(stub.Options{})
	rec := post(t, s.Handler(), "/generate", `{"prompt":"hi","stream":true,"options":{"num_tokens":3}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var chunks []stub.GenerateResponse
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var c stub.GenerateResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 4)
	assert.False(t, chunks[0].Done)
	assert.True(t, chunks[3].Done)
	assert.Equal(t, 3, chunks[3].EvalCount)
}

func TestHealth(t *testing.T) {
	s := stub.New(stub.Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestServe_Shutdown(t *testing.T) {
	s := stub.New(stub.Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stub did not shut down")
	}
}

func shortRun(url string) *scenario.Scenario {
	sc := scenario.Default(url)
	sc.Profile = scenario.Profile{
		{Duration: 300 * time.Millisecond, Target: 2},
		{Duration: 300 * time.Millisecond, Target: 2},
		{Duration: 200 * time.Millisecond, Target: 0},
	}
	sc.Action.Pause = 20 * time.Millisecond
	return sc
}

func fastMetrics() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 100 * time.Millisecond
	return cfg
}

func TestEndToEnd_DefaultScenario(t *testing.T) {
	s := stub.New(stub.Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sc := shortRun(srv.URL)
	sc.Action.Checks = append(sc.Action.Checks,
		scenario.JSONPathCheck{Path: "$.done", Match: scenario.MatchEquals, Value: "true"},
		scenario.JSONPathCheck{Path: "$.eval_count", Match: scenario.MatchEquals, Value: "10"},
	)

	eng, err := engine.New(sc, engine.Options{
		Metrics:    fastMetrics(),
		Thresholds: engine.Thresholds{Checks: []string{"rate == 1"}},
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, s.Requests(), result.Metrics.TotalRequests)
	assert.Equal(t, int64(0), result.Metrics.FailedRequests)
	require.Len(t, result.Metrics.Checks, 3)
	for _, c := range result.Metrics.Checks {
		assert.Zero(t, c.Fails, c.Name)
	}
}

func TestEndToEnd_ServerErrors(t *testing.T) {
	s := stub.New(stub.Options{Status: http.StatusInternalServerError})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	eng, err := engine.New(shortRun(srv.URL), engine.Options{
		Metrics:    fastMetrics(),
		Thresholds: engine.Thresholds{HTTPReqFailed: []string{"rate < 0.1"}},
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 1.0, result.Metrics.ErrorRate)
	assert.Equal(t, s.Failures(), result.Metrics.TotalRequests)
}
