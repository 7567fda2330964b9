package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/genload/internal/metrics"
	"github.com/wesleyorama2/genload/internal/vu"
)

// ConstantVUs runs a fixed number of VUs for a fixed duration. Each VU loops
// the action back to back (closed model), so throughput is bounded by
// latency plus pause.
type ConstantVUs struct {
	config *Config

	mu        sync.RWMutex
	scheduler *vu.Scheduler
	startTime time.Time
	cancel    context.CancelFunc

	running atomic.Bool
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

func (e *ConstantVUs) Type() Type { return TypeConstantVUs }

// Init validates cfg.
func (e *ConstantVUs) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config = cfg
	return nil
}

// Run starts all VUs at once, holds them for the duration and then stops them.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *vu.Scheduler, m *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.mu.Lock()
	e.scheduler = scheduler
	e.startTime = time.Now()
	e.cancel = cancel
	e.mu.Unlock()
	e.running.Store(true)

	vuCtx, vuCancel := context.WithCancel(ctx)
	defer vuCancel()

	m.SetPhase(metrics.PhaseSteady)
	scheduler.ScaleTo(vuCtx, e.config.VUs)

	<-runCtx.Done()

	if !scheduler.Shutdown(e.config.gracefulStop()) {
		vuCancel()
		scheduler.Wait(time.Second)
	}
	m.SetActiveVUs(0)
	m.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

func (e *ConstantVUs) start() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startTime
}

func (e *ConstantVUs) Progress() float64 {
	if e.config == nil {
		return 0
	}
	return progress(e.start(), e.running.Load(), e.config.Duration)
}

func (e *ConstantVUs) ActiveVUs() int {
	e.mu.RLock()
	s := e.scheduler
	e.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.ActiveCount()
}

func (e *ConstantVUs) Stats() *Stats {
	start := e.start()
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	st := &Stats{
		StartTime: start,
		Elapsed:   elapsed,
		ActiveVUs: e.ActiveVUs(),
	}
	if e.config != nil {
		st.TotalDuration = e.config.Duration
		st.TargetVUs = e.config.VUs
	}
	return st
}

// Stop cancels the duration timer; Run then stops the VUs gracefully.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Executor = (*ConstantVUs)(nil)
