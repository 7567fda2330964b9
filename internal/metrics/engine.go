package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects run metrics.
//
// Latencies go into HDR histograms (which are not goroutine-safe, hence the
// mutexes); counters are atomics. A background goroutine seals a time bucket
// every Config.BucketInterval until Stop is called.
//
// Engine implements scenario.Recorder.
type Engine struct {
	cfg Config

	latencyMu sync.Mutex
	latency   *hdrhistogram.Histogram

	iterMu   sync.Mutex
	iterHist *hdrhistogram.Histogram

	requests   atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	bytes      atomic.Int64
	iterations atomic.Int64

	checksMu   sync.Mutex
	checks     map[string]*CheckStats
	checkOrder []string

	activeVUs atomic.Int32

	phaseMu      sync.RWMutex
	phase        Phase
	phaseHistory []PhaseChange

	buckets *bucketStore

	startMu sync.RWMutex
	start   time.Time

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewEngine creates an engine with DefaultConfig.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultConfig())
}

// NewEngineWithConfig creates an engine and starts its bucket emitter.
func NewEngineWithConfig(cfg Config) *Engine {
	if cfg.BucketInterval <= 0 {
		cfg.BucketInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		latency:  hdrhistogram.New(cfg.HistogramMin, cfg.HistogramMax, cfg.HistogramSigFigs),
		iterHist: hdrhistogram.New(cfg.HistogramMin, cfg.HistogramMax, cfg.HistogramSigFigs),
		checks:   make(map[string]*CheckStats),
		phase:    PhaseInit,
		buckets:  newBucketStore(cfg.MaxBuckets),
		start:    time.Now(),
		cancel:   cancel,
	}

	e.wg.Add(1)
	go e.emit(ctx)
	return e
}

func (e *Engine) clamp(d time.Duration) int64 {
	us := d.Microseconds()
	if us < e.cfg.HistogramMin {
		us = e.cfg.HistogramMin
	}
	if us > e.cfg.HistogramMax {
		us = e.cfg.HistogramMax
	}
	return us
}

// RecordRequest records one HTTP request.
func (e *Engine) RecordRequest(name string, d time.Duration, failed bool, bytes int64) {
	us := e.clamp(d)

	e.latencyMu.Lock()
	_ = e.latency.RecordValue(us)
	e.latencyMu.Unlock()

	e.requests.Add(1)
	e.bytes.Add(bytes)
	if failed {
		e.failures.Add(1)
	} else {
		e.successes.Add(1)
	}
	e.buckets.recordRequest(failed)
}

// RecordCheck records one evaluation of the named check.
func (e *Engine) RecordCheck(name string, passed bool) {
	e.checksMu.Lock()
	c, ok := e.checks[name]
	if !ok {
		c = &CheckStats{Name: name}
		e.checks[name] = c
		e.checkOrder = append(e.checkOrder, name)
	}
	if passed {
		c.Passes++
	} else {
		c.Fails++
	}
	e.checksMu.Unlock()

	e.buckets.recordCheck(passed)
}

// RecordIteration records the wall time of one full iteration.
func (e *Engine) RecordIteration(d time.Duration) {
	us := e.clamp(d)

	e.iterMu.Lock()
	_ = e.iterHist.RecordValue(us)
	e.iterMu.Unlock()

	e.iterations.Add(1)
}

// SetPhase records a phase transition; repeated calls with the same phase are
// ignored.
func (e *Engine) SetPhase(p Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.phase == p {
		return
	}
	e.phase = p
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     p,
		Timestamp: time.Now(),
		Requests:  e.requests.Load(),
	})
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// PhaseHistory returns a copy of every recorded transition.
func (e *Engine) PhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	out := make([]PhaseChange, len(e.phaseHistory))
	copy(out, e.phaseHistory)
	return out
}

func (e *Engine) SetActiveVUs(n int) { e.activeVUs.Store(int32(n)) }

func (e *Engine) ActiveVUs() int { return int(e.activeVUs.Load()) }

// Checks returns per-check counts in first-seen order.
func (e *Engine) Checks() []CheckStats {
	e.checksMu.Lock()
	defer e.checksMu.Unlock()

	out := make([]CheckStats, 0, len(e.checkOrder))
	for _, name := range e.checkOrder {
		out = append(out, *e.checks[name])
	}
	return out
}

func (e *Engine) emit(ctx context.Context) {
	defer e.wg.Done()

	t := time.NewTicker(e.cfg.BucketInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.sealBucket()
		}
	}
}

func (e *Engine) sealBucket() {
	e.latencyMu.Lock()
	p50 := e.latency.ValueAtQuantile(50)
	p95 := e.latency.ValueAtQuantile(95)
	p99 := e.latency.ValueAtQuantile(99)
	e.latencyMu.Unlock()

	e.buckets.close(&TimeBucket{
		TotalRequests: e.requests.Load(),
		TotalFailures: e.failures.Load(),
		LatencyP50:    time.Duration(p50) * time.Microsecond,
		LatencyP95:    time.Duration(p95) * time.Microsecond,
		LatencyP99:    time.Duration(p99) * time.Microsecond,
		ActiveVUs:     e.ActiveVUs(),
		Phase:         e.Phase(),
	})
}

func histStats(h *hdrhistogram.Histogram) LatencyStats {
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Min:    us(h.Min()),
		Max:    us(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    us(h.ValueAtQuantile(50)),
		P90:    us(h.ValueAtQuantile(90)),
		P95:    us(h.ValueAtQuantile(95)),
		P99:    us(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

// Snapshot returns the current totals.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyMu.Lock()
	lat := histStats(e.latency)
	e.latencyMu.Unlock()

	e.iterMu.Lock()
	iter := histStats(e.iterHist)
	e.iterMu.Unlock()

	e.startMu.RLock()
	start := e.start
	e.startMu.RUnlock()

	elapsed := time.Since(start)
	total := e.requests.Load()
	failed := e.failures.Load()

	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	steady, n := e.buckets.steadyRPS()
	if n > 0 {
		rps = steady
	}

	errRate := 0.0
	if total > 0 {
		errRate = float64(failed) / float64(total)
	}

	checks := e.Checks()
	var passes, fails int64
	for _, c := range checks {
		passes += c.Passes
		fails += c.Fails
	}
	checkRate := 0.0
	if passes+fails > 0 {
		checkRate = float64(passes) / float64(passes+fails)
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.successes.Load(),
		FailedRequests:  failed,
		TotalBytes:      e.bytes.Load(),
		Iterations:      e.iterations.Load(),
		Latency:         lat,
		IterationTime:   iter,
		RPS:             rps,
		SteadyStateRPS:  steady,
		ErrorRate:       errRate,
		CheckPasses:     passes,
		CheckFails:      fails,
		CheckRate:       checkRate,
		Checks:          checks,
		ActiveVUs:       e.ActiveVUs(),
		CurrentPhase:    e.Phase(),
		Elapsed:         elapsed,
		StartTime:       start,
		Timestamp:       time.Now(),
	}
}

// TimeSeries returns the sealed buckets oldest first.
func (e *Engine) TimeSeries() []*TimeBucket {
	return e.buckets.all()
}

// Stop halts the emitter and seals a final bucket. It is idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		e.sealBucket()
	})
}

// Reset clears every metric and restarts the clock.
func (e *Engine) Reset() {
	e.latencyMu.Lock()
	e.latency.Reset()
	e.latencyMu.Unlock()

	e.iterMu.Lock()
	e.iterHist.Reset()
	e.iterMu.Unlock()

	e.requests.Store(0)
	e.successes.Store(0)
	e.failures.Store(0)
	e.bytes.Store(0)
	e.iterations.Store(0)
	e.activeVUs.Store(0)

	e.checksMu.Lock()
	e.checks = make(map[string]*CheckStats)
	e.checkOrder = nil
	e.checksMu.Unlock()

	e.phaseMu.Lock()
	e.phase = PhaseInit
	e.phaseHistory = nil
	e.phaseMu.Unlock()

	e.buckets.reset()

	e.startMu.Lock()
	e.start = time.Now()
	e.startMu.Unlock()
}
