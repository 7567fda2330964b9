// Package config loads genload scenario files.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/scenario"
)

// TestConfig is the root of a scenario file.
//
// Example YAML:
//
//	name: generate-load
//	target:
//	  host: "${GENLOAD_HOST}"
//	  path: /generate
//	stages:
//	  - {duration: 30s, target: 10}
//	  - {duration: 1m, target: 10}
//	  - {duration: 30s, target: 0}
//	payload:
//	  prompt: Hello World
//	  options: {num_tokens: 10}
//	pause: 1s
//	checks:
//	  - {name: is status 200, type: status, value: "200"}
type TestConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Target TargetConfig `json:"target" yaml:"target"`

	// Executor is "ramping-vus" (default) or "constant-vus".
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`
	// VUs and Duration configure constant-vus.
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	Stages       []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
	GracefulStop Duration      `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	Payload *scenario.Payload `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Pause is the think time after each iteration. Nil means the default;
	// an explicit 0 disables it.
	Pause *Duration `json:"pause,omitempty" yaml:"pause,omitempty"`

	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`

	Thresholds *engine.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// TargetConfig describes the service under test.
type TargetConfig struct {
	// Host is host[:port] or a base URL. ${VAR} references are expanded.
	Host    string            `json:"host" yaml:"host"`
	Path    string            `json:"path,omitempty" yaml:"path,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	MaxConnsPerHost    int  `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
}

// StageConfig is one ramping stage.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Check types.
const (
	CheckStatus   = "status"
	CheckJSONPath = "jsonpath"
	CheckSchema   = "schema"
)

// CheckConfig declares one named check.
type CheckConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Type is status, jsonpath or schema.
	Type string `json:"type" yaml:"type"`
	// Value is the status code for status checks and the expected value
	// for jsonpath eq/contains.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	// Path and Match apply to jsonpath checks. Match is exists (default),
	// eq or contains.
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Match string `json:"match,omitempty" yaml:"match,omitempty"`
	// Schema is an inline JSON Schema document for schema checks.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Duration is a time.Duration read from "30s"-style strings or bare
// integers, which count seconds.
type Duration time.Duration

// ParseDurationString parses "30s", "1m30s" or "30" (seconds). An empty
// string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Or returns the duration, or def when unset.
func (d Duration) Or(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}
