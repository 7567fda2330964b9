// Package engine runs a scenario end to end: it builds the VU scheduler and
// executor, collects metrics and evaluates thresholds.
//
// Example usage:
//
//	sc := scenario.Default("10.0.0.5:8000")
//	eng, _ := engine.New(sc, engine.Options{})
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("passed: %v\n", result.Passed)
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/metrics"
	"github.com/wesleyorama2/genload/internal/scenario"
	"github.com/wesleyorama2/genload/internal/vu"
)

// Options tunes how a scenario is run.
type Options struct {
	// Executor defaults to ramping-vus over the scenario profile.
	Executor executor.Type
	// VUs and Duration configure constant-vus.
	VUs      int
	Duration time.Duration

	GracefulStop time.Duration
	HTTP         vu.HTTPClientConfig
	Thresholds   Thresholds

	// Metrics overrides metrics.DefaultConfig when BucketInterval is set.
	Metrics metrics.Config

	Logger logrus.FieldLogger
}

// Result is the outcome of one run.
type Result struct {
	RunID    string           `json:"runId"`
	Name     string           `json:"name"`
	Target   string           `json:"target"`
	Executor executor.Type    `json:"executor"`
	Profile  scenario.Profile `json:"stages,omitempty"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`

	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`

	Error string `json:"error,omitempty"`
}

// Engine runs one scenario. It is single use.
type Engine struct {
	scenario *scenario.Scenario
	opts     Options
	execCfg  *executor.Config
	target   string
	runID    string
	log      logrus.FieldLogger

	mu        sync.RWMutex
	running   bool
	done      bool
	exec      executor.Executor
	metrics   *metrics.Engine
	startTime time.Time
	stopped   atomic.Bool
}

// ErrStopped is the run error of a scenario ended early with Stop.
var ErrStopped = errors.New("run stopped before completion")

// New validates sc and opts and prepares an engine.
func New(sc *scenario.Scenario, opts Options) (*Engine, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	applyDefaults(&opts)

	execCfg := &executor.Config{
		Name:         sc.Name,
		Type:         opts.Executor,
		VUs:          opts.VUs,
		Duration:     opts.Duration,
		Stages:       sc.Profile,
		GracefulStop: opts.GracefulStop,
	}
	if err := execCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor: %w", err)
	}

	target, _ := sc.Action.Target.URL()
	runID := uuid.NewString()

	return &Engine{
		scenario: sc,
		opts:     opts,
		execCfg:  execCfg,
		target:   target,
		runID:    runID,
		log: opts.Logger.WithFields(logrus.Fields{
			"run":      runID,
			"scenario": sc.Name,
		}),
	}, nil
}

func applyDefaults(opts *Options) {
	if opts.Executor == "" {
		opts.Executor = executor.TypeRampingVUs
	}
	if opts.HTTP.Timeout == 0 {
		opts.HTTP = vu.DefaultHTTPClientConfig()
	}
	if opts.Metrics.BucketInterval == 0 {
		opts.Metrics = metrics.DefaultConfig()
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
}

// RunID identifies this run in logs, reports and history.
func (e *Engine) RunID() string { return e.runID }

// Target is the resolved endpoint URL.
func (e *Engine) Target() string { return e.target }

// ExecutorConfig returns the resolved executor configuration.
func (e *Engine) ExecutorConfig() executor.Config { return *e.execCfg }

// Run executes the scenario and blocks until it completes or ctx is
// cancelled. A cancelled run still returns a result for what was measured.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	exec, err := executor.NewFromConfig(ctx, e.execCfg)
	if err != nil {
		return nil, err
	}
	if ramping, ok := exec.(*executor.RampingVUs); ok {
		ramping.OnStage = func(i int) {
			st := e.scenario.Profile[i]
			e.log.WithFields(logrus.Fields{
				"stage":    i + 1,
				"name":     st.Name,
				"target":   st.Target,
				"duration": st.Duration,
			}).Debug("stage started")
		}
	}

	m := metrics.NewEngineWithConfig(e.opts.Metrics)
	defer m.Stop()

	e.mu.Lock()
	if e.running || e.done {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine has already run")
	}
	e.running = true
	e.exec = exec
	e.metrics = m
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.done = true
		e.mu.Unlock()
	}()

	e.log.WithFields(logrus.Fields{
		"target":   e.target,
		"executor": e.execCfg.Type,
		"duration": e.execCfg.TotalDuration(),
	}).Info("run started")

	sched := vu.NewScheduler(e.scenario.Action, m, e.opts.HTTP, e.log)
	runErr := exec.Run(ctx, sched, m)
	if runErr == nil && ctx.Err() != nil {
		runErr = fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if runErr == nil && e.stopped.Load() {
		runErr = ErrStopped
	}

	m.Stop()
	snap := m.Snapshot()
	thresholds := e.opts.Thresholds.Evaluate(snap)

	passed := runErr == nil
	for _, t := range thresholds {
		if !t.Passed {
			passed = false
		}
	}

	end := time.Now()
	result := &Result{
		RunID:      e.runID,
		Name:       e.scenario.Name,
		Target:     e.target,
		Executor:   e.execCfg.Type,
		StartTime:  e.startTime,
		EndTime:    end,
		Duration:   end.Sub(e.startTime),
		Metrics:    snap,
		TimeSeries: m.TimeSeries(),
		Phases:     m.PhaseHistory(),
		Thresholds: thresholds,
		Passed:     passed,
	}
	if e.execCfg.Type == executor.TypeRampingVUs {
		result.Profile = e.scenario.Profile
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	e.log.WithFields(logrus.Fields{
		"requests":  snap.TotalRequests,
		"failed":    snap.FailedRequests,
		"checkRate": snap.CheckRate,
		"passed":    passed,
		"duration":  result.Duration,
	}).Info("run finished")

	return result, runErr
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Metrics returns the current snapshot, or nil before Run.
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	m := e.metrics
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.Snapshot()
}

// Progress returns 0.0 to 1.0.
func (e *Engine) Progress() float64 {
	e.mu.RLock()
	exec := e.exec
	e.mu.RUnlock()
	if exec == nil {
		return 0
	}
	return exec.Progress()
}

// Stats returns the executor's live statistics, or nil before Run.
func (e *Engine) Stats() *executor.Stats {
	e.mu.RLock()
	exec := e.exec
	e.mu.RUnlock()
	if exec == nil {
		return nil
	}
	return exec.Stats()
}

// Stop ends a running scenario early; Run returns ErrStopped after the
// graceful stop.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec, running := e.exec, e.running
	e.mu.RUnlock()
	if !running || exec == nil {
		return nil
	}
	e.stopped.Store(true)
	e.log.Info("stop requested")
	return exec.Stop(ctx)
}
