// Package vu runs virtual users: independent loops that repeat a scenario
// action until asked to stop.
package vu

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/genload/internal/scenario"
)

// State is the lifecycle state of a VirtualUser.
type State int32

const (
	StateIdle State = iota
	StateRunning
	// StateStopping means a stop was requested; the current iteration still
	// finishes.
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser repeats one action. VUs share nothing but the action, which is
// read-only, and the client and recorder, which are safe for concurrent use.
type VirtualUser struct {
	ID       int
	Action   *scenario.Action
	Client   scenario.Doer
	Recorder scenario.Recorder

	state     atomic.Int32
	iteration atomic.Int64
	failures  atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates an idle VU.
func New(id int, action *scenario.Action, client scenario.Doer, rec scenario.Recorder) *VirtualUser {
	return &VirtualUser{
		ID:       id,
		Action:   action,
		Client:   client,
		Recorder: rec,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (v *VirtualUser) State() State { return State(v.state.Load()) }

// Iterations returns how many iterations this VU has started.
func (v *VirtualUser) Iterations() int64 { return v.iteration.Load() }

// FailedIterations returns how many iterations had at least one failed check.
func (v *VirtualUser) FailedIterations() int64 { return v.failures.Load() }

// RunIteration runs the action once. A failed request or check is recorded,
// not returned; the only errors are a stopped VU or a cancelled context.
func (v *VirtualUser) RunIteration(ctx context.Context) error {
	s := v.State()
	if s == StateStopping || s == StateStopped {
		return fmt.Errorf("vu %d is %s", v.ID, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	v.iteration.Add(1)

	out := v.Action.Iterate(ctx, v.Client, v.Recorder)
	if !out.Passed() {
		v.failures.Add(1)
	}

	v.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))
	return nil
}

// Run loops RunIteration until the VU is stopped or ctx is done.
func (v *VirtualUser) Run(ctx context.Context) {
	defer v.markStopped()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		default:
		}

		if err := v.RunIteration(ctx); err != nil {
			return
		}
	}
}

// RequestStop asks the VU to stop after its current iteration. It retries
// while RunIteration flips the VU between idle and running.
func (v *VirtualUser) RequestStop() {
	for {
		s := v.state.Load()
		if s == int32(StateStopping) || s == int32(StateStopped) {
			return
		}
		if v.state.CompareAndSwap(s, int32(StateStopping)) {
			close(v.stopCh)
			return
		}
	}
}

// WaitForStop reports whether the VU stopped within timeout.
func (v *VirtualUser) WaitForStop(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-v.doneCh:
		return true
	case <-t.C:
		return false
	}
}

// Done is closed once the VU has stopped.
func (v *VirtualUser) Done() <-chan struct{} { return v.doneCh }

func (v *VirtualUser) markStopped() {
	v.state.Store(int32(StateStopped))
	select {
	case <-v.doneCh:
	default:
		close(v.doneCh)
	}
}
