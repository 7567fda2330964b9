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

// RampingVUs ramps the VU count through stages, interpolating linearly from
// each stage's starting count to its target:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # 0 -> 10 VUs over 30s
//	  - duration: 1m
//	    target: 10     # hold 10 VUs
//	  - duration: 30s
//	    target: 0      # 10 -> 0 VUs over 30s
type RampingVUs struct {
	config    *Config
	scheduler *vu.Scheduler
	metrics   *metrics.Engine

	mu        sync.RWMutex
	startTime time.Time
	cancel    context.CancelFunc

	running      atomic.Bool
	targetVUs    atomic.Int32
	currentStage atomic.Int32

	// OnStage, when set, is called from the control loop whenever the
	// current stage index changes.
	OnStage func(index int)
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

func (e *RampingVUs) Type() Type { return TypeRampingVUs }

// Init validates cfg.
func (e *RampingVUs) Init(ctx context.Context, cfg *Config) error {
	if cfg.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config = cfg
	return nil
}

// Run executes the stages and blocks until they complete.
func (e *RampingVUs) Run(ctx context.Context, scheduler *vu.Scheduler, m *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	e.metrics = m

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	defer cancel()

	e.mu.Lock()
	e.scheduler = scheduler
	e.startTime = time.Now()
	e.cancel = cancel
	e.mu.Unlock()
	e.running.Store(true)

	// VUs outlive the stage clock by the graceful stop so that the last
	// iterations can finish; they are stopped explicitly below.
	vuCtx, vuCancel := context.WithCancel(ctx)
	defer vuCancel()

	e.control(runCtx, vuCtx)

	e.targetVUs.Store(0)
	if !scheduler.Shutdown(e.config.gracefulStop()) {
		vuCancel()
		scheduler.Wait(time.Second)
	}
	m.SetActiveVUs(0)
	m.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	return nil
}

// control re-evaluates the target every controlInterval until ctx ends.
func (e *RampingVUs) control(ctx, vuCtx context.Context) {
	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

	lastStage := -1
	for {
		target, stage := e.config.Stages.TargetAt(time.Since(e.start()))
		e.targetVUs.Store(int32(target))
		e.currentStage.Store(int32(stage))

		e.sched().ScaleTo(vuCtx, target)
		e.updatePhase(stage)
		if stage != lastStage {
			lastStage = stage
			if e.OnStage != nil {
				e.OnStage(stage)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// updatePhase maps the stage shape onto a metrics phase.
func (e *RampingVUs) updatePhase(stage int) {
	stages := e.config.Stages
	if stage < 0 || stage >= len(stages) {
		return
	}

	prev := 0
	if stage > 0 {
		prev = stages[stage-1].Target
	}

	switch cur := stages[stage].Target; {
	case cur == prev:
		e.metrics.SetPhase(metrics.PhaseSteady)
	case cur > prev:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	default:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	}
}

func (e *RampingVUs) start() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startTime
}

func (e *RampingVUs) Progress() float64 {
	if e.config == nil {
		return 0
	}
	return progress(e.start(), e.running.Load(), e.config.TotalDuration())
}

func (e *RampingVUs) sched() *vu.Scheduler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scheduler
}

func (e *RampingVUs) ActiveVUs() int {
	if s := e.sched(); s != nil {
		return s.ActiveCount()
	}
	return 0
}

func (e *RampingVUs) Stats() *Stats {
	start := e.start()
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	st := &Stats{
		StartTime: start,
		Elapsed:   elapsed,
		ActiveVUs: e.ActiveVUs(),
		TargetVUs: int(e.targetVUs.Load()),
	}
	if e.config != nil {
		idx := int(e.currentStage.Load())
		st.TotalDuration = e.config.TotalDuration()
		st.TotalStages = len(e.config.Stages)
		st.CurrentStage = idx
		if idx >= 0 && idx < len(e.config.Stages) {
			st.CurrentStageName = e.config.Stages[idx].Name
		}
	}
	return st
}

// Stop cancels the stage clock; Run then performs the graceful shutdown.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Executor = (*RampingVUs)(nil)
