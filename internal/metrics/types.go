// Package metrics aggregates request latency, failures and check results
// recorded by virtual users during a run.
package metrics

import "time"

// Phase is the load shape the run is currently in.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// LatencyStats summarizes the latency histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// CheckStats counts the outcomes of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate is the fraction of evaluations that passed.
func (c CheckStats) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// Snapshot is a point-in-time view of every metric.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes"`
	Iterations      int64         `json:"iterations"`
	Latency         LatencyStats  `json:"latency"`
	IterationTime   LatencyStats  `json:"iterationDuration"`
	RPS             float64       `json:"rps"`
	SteadyStateRPS  float64       `json:"steadyStateRps"`
	ErrorRate       float64       `json:"errorRate"`
	CheckPasses     int64         `json:"checkPasses"`
	CheckFails      int64         `json:"checkFails"`
	CheckRate       float64       `json:"checkRate"`
	Checks          []CheckStats  `json:"checks"`
	ActiveVUs       int           `json:"activeVUs"`
	CurrentPhase    Phase         `json:"currentPhase"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}

// TimeBucket holds one interval of the time series.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`

	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRps"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`
	IntervalCheckRate float64 `json:"intervalCheckRate"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange records a phase transition.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// Config tunes the metrics engine.
type Config struct {
	// BucketInterval is the time-series resolution.
	BucketInterval time.Duration
	// MaxBuckets bounds the time-series ring buffer.
	MaxBuckets int
	// Histogram bounds in microseconds.
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int
}

// DefaultConfig keeps one hour of one-second buckets.
func DefaultConfig() Config {
	return Config{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}
