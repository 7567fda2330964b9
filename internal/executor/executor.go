// Package executor provides load shapes: strategies that decide how many
// virtual users run at each moment of a test.
package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/genload/internal/metrics"
	"github.com/wesleyorama2/genload/internal/scenario"
	"github.com/wesleyorama2/genload/internal/vu"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// DefaultGracefulStop bounds how long in-flight iterations may run after the
// load shape ends.
const DefaultGracefulStop = 30 * time.Second

// controlInterval is how often VU counts are re-evaluated.
const controlInterval = 100 * time.Millisecond

// Executor drives a scheduler through a load shape.
type Executor interface {
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, cfg *Config) error

	// Run blocks until the load shape completes or ctx is cancelled, then
	// waits for in-flight iterations.
	Run(ctx context.Context, scheduler *vu.Scheduler, m *metrics.Engine) error

	// Progress returns 0.0 to 1.0.
	Progress() float64

	ActiveVUs() int
	Stats() *Stats

	// Stop ends the run early.
	Stop(ctx context.Context) error
}

// Config configures an executor.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// constant-vus
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	Stages scenario.Profile `json:"stages,omitempty" yaml:"stages,omitempty"`

	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case "":
		return &ValidationError{Field: "type", Message: "executor type is required"}

	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if err := c.Stages.Validate(); err != nil {
			return &ValidationError{Field: "stages", Message: err.Error()}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	return nil
}

// TotalDuration is the length of the load shape, excluding graceful stop.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration
	case TypeRampingVUs:
		return c.Stages.TotalDuration()
	default:
		return 0
	}
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// progress is shared by the VU executors.
func progress(start time.Time, running bool, total time.Duration) float64 {
	if start.IsZero() {
		return 0
	}
	if !running || total <= 0 {
		return 1
	}
	p := float64(time.Since(start)) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}
