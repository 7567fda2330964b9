package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/metrics"
	"github.com/wesleyorama2/genload/internal/scenario"
)

func statusServer(status int, hits *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
}

func shortScenario(url string) *scenario.Scenario {
	sc := scenario.Default(url)
	sc.Profile = scenario.Profile{
		{Duration: 300 * time.Millisecond, Target: 3},
		{Duration: 300 * time.Millisecond, Target: 3},
		{Duration: 300 * time.Millisecond, Target: 0},
	}
	sc.Action.Pause = 20 * time.Millisecond
	return sc
}

func fastMetrics() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 100 * time.Millisecond
	return cfg
}

func TestNew_Validation(t *testing.T) {
	_, err := engine.New(nil, engine.Options{})
	assert.Error(t, err)

	_, err = engine.New(scenario.Default(""), engine.Options{})
	assert.Error(t, err, "missing host must be rejected")

	_, err = engine.New(scenario.Default("localhost:1"), engine.Options{
		Thresholds: engine.Thresholds{HTTPReqDuration: []string{"p95 < soon"}},
	})
	assert.Error(t, err)

	_, err = engine.New(scenario.Default("localhost:1"), engine.Options{Executor: executor.TypeConstantVUs})
	assert.Error(t, err, "constant-vus needs vus and duration")
}

func TestNew_Defaults(t *testing.T) {
	eng, err := engine.New(scenario.Default("10.0.0.5:8000"), engine.Options{})
	require.NoError(t, err)

	_, err = uuid.Parse(eng.RunID())
	assert.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000/generate", eng.Target())

	cfg := eng.ExecutorConfig()
	assert.Equal(t, executor.TypeRampingVUs, cfg.Type)
	assert.Equal(t, scenario.DefaultProfile(), cfg.Stages)
	assert.Equal(t, 2*time.Minute, cfg.TotalDuration())

	assert.Nil(t, eng.Metrics())
	assert.Nil(t, eng.Stats())
	assert.Equal(t, 0.0, eng.Progress())
	assert.False(t, eng.IsRunning())
}

func TestRun_AllPass(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusOK, &hits)
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	eng, err := engine.New(shortScenario(srv.URL), engine.Options{
		Metrics: fastMetrics(),
		Logger:  logger,
		Thresholds: engine.Thresholds{
			Checks:        []string{"rate == 1"},
			HTTPReqFailed: []string{"rate < 0.01"},
		},
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, eng.RunID(), result.RunID)
	assert.Equal(t, executor.TypeRampingVUs, result.Executor)
	assert.Len(t, result.Profile, 3)
	assert.Empty(t, result.Error)
	assert.GreaterOrEqual(t, result.Duration, 900*time.Millisecond)

	require.NotNil(t, result.Metrics)
	assert.Equal(t, hits.Load(), result.Metrics.TotalRequests)
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	assert.Equal(t, 1.0, result.Metrics.CheckRate)
	require.Len(t, result.Metrics.Checks, 1)
	assert.Equal(t, "is status 200", result.Metrics.Checks[0].Name)
	assert.NotEmpty(t, result.TimeSeries)
	assert.NotEmpty(t, result.Phases)

	require.Len(t, result.Thresholds, 2)
	for _, th := range result.Thresholds {
		assert.True(t, th.Passed, th.Expression)
	}

	var stageLogs, runLogs int
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "stage started":
			stageLogs++
		case "run started", "run finished":
			runLogs++
			assert.Equal(t, eng.RunID(), e.Data["run"])
		}
	}
	assert.Equal(t, 3, stageLogs)
	assert.Equal(t, 2, runLogs)

	_, err = eng.Run(context.Background())
	assert.Error(t, err, "engine is single use")
}

func TestRun_ServerErrorFailsThresholds(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusInternalServerError, &hits)
	defer srv.Close()

	eng, err := engine.New(shortScenario(srv.URL), engine.Options{
		Metrics:    fastMetrics(),
		Thresholds: engine.Thresholds{Checks: []string{"rate > 0.99"}},
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 0.0, result.Metrics.CheckRate)
	assert.Equal(t, 1.0, result.Metrics.ErrorRate)
	assert.Equal(t, result.Metrics.TotalRequests, result.Metrics.CheckFails)
}

func TestRun_NoThresholdsPassesDespiteFailedChecks(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusInternalServerError, &hits)
	defer srv.Close()

	eng, err := engine.New(shortScenario(srv.URL), engine.Options{Metrics: fastMetrics()})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Greater(t, result.Metrics.CheckFails, int64(0))
}

func TestRun_ConstantVUs(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusOK, &hits)
	defer srv.Close()

	eng, err := engine.New(shortScenario(srv.URL), engine.Options{
		Executor: executor.TypeConstantVUs,
		VUs:      2,
		Duration: 300 * time.Millisecond,
		Metrics:  fastMetrics(),
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, executor.TypeConstantVUs, result.Executor)
	assert.Nil(t, result.Profile)
	assert.Greater(t, result.Metrics.Iterations, int64(2))
}

func TestRun_Cancelled(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusOK, &hits)
	defer srv.Close()

	sc := scenario.Default(srv.URL)
	sc.Action.Pause = 20 * time.Millisecond

	eng, err := engine.New(sc, engine.Options{Metrics: fastMetrics()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := eng.Run(ctx)
	assert.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Error)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStop(t *testing.T) {
	var hits atomic.Int64
	srv := statusServer(http.StatusOK, &hits)
	defer srv.Close()

	sc := scenario.Default(srv.URL)
	sc.Action.Pause = 20 * time.Millisecond

	eng, err := engine.New(sc, engine.Options{Metrics: fastMetrics()})
	require.NoError(t, err)
	assert.NoError(t, eng.Stop(context.Background()), "stop before run is a no-op")

	done := make(chan *engine.Result, 1)
	go func() {
		r, err := eng.Run(context.Background())
		assert.ErrorIs(t, err, engine.ErrStopped)
		done <- r
	}()

	require.Eventually(t, eng.IsRunning, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	assert.NotNil(t, eng.Metrics())
	assert.NotNil(t, eng.Stats())
	require.NoError(t, eng.Stop(context.Background()))

	select {
	case r := <-done:
		require.NotNil(t, r)
		assert.False(t, r.Passed, "a stopped run does not pass")
		assert.Equal(t, engine.ErrStopped.Error(), r.Error)
		assert.Less(t, r.Duration, 30*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
