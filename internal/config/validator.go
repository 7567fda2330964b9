package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/scenario"
	"github.com/wesleyorama2/genload/pkg/jsonschema"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the whole configuration and returns every problem found
// as a *ValidationErrors, or nil.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)
	validateLoad(c, errs)

	if c.Pause != nil && *c.Pause < 0 {
		errs.Add("pause", "cannot be negative")
	}

	if c.Payload != nil {
		if strings.TrimSpace(c.Payload.Prompt) == "" {
			errs.Add("payload.prompt", "prompt is required")
		}
		if c.Payload.Options.NumTokens < 0 {
			errs.Add("payload.options.num_tokens", "cannot be negative")
		}
	}

	for i, chk := range c.Checks {
		validateCheck(fmt.Sprintf("checks[%d]", i), &chk, errs)
	}

	if c.Thresholds != nil {
		if err := c.Thresholds.Validate(); err != nil {
			errs.Add("thresholds", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if strings.TrimSpace(t.Host) == "" {
		errs.Add("target.host", "host is required (set --host, GENLOAD_HOST or target.host)")
	} else if _, err := (scenario.Target{BaseURL: t.Host, Path: t.Path}).URL(); err != nil {
		errs.Add("target.host", err.Error())
	}

	if t.Timeout < 0 {
		errs.Add("target.timeout", "cannot be negative")
	}
	if t.MaxConnsPerHost < 0 {
		errs.Add("target.maxConnsPerHost", "cannot be negative")
	}
}

func validateLoad(c *TestConfig, errs *ValidationErrors) {
	switch executor.Type(c.Executor) {
	case "", executor.TypeRampingVUs:
		if len(c.Stages) == 0 {
			errs.Add("stages", "at least one stage is required")
		}
		for i, st := range c.Stages {
			prefix := fmt.Sprintf("stages[%d]", i)
			if st.Duration < 0 {
				errs.Add(prefix+".duration", "cannot be negative")
			}
			if st.Target < 0 {
				errs.Add(prefix+".target", "cannot be negative")
			}
		}

	case executor.TypeConstantVUs:
		if c.VUs <= 0 {
			errs.Add("vus", "vus must be greater than 0")
		}
		if c.Duration <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}

	default:
		errs.Add("executor", fmt.Sprintf("unknown executor type: %s", c.Executor))
	}

	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "cannot be negative")
	}
}

func validateCheck(prefix string, chk *CheckConfig, errs *ValidationErrors) {
	switch chk.Type {
	case CheckStatus:
		code, err := strconv.Atoi(chk.Value)
		if err != nil || code < 100 || code > 599 {
			errs.Add(prefix+".value", fmt.Sprintf("invalid status code: %q", chk.Value))
		}

	case CheckJSONPath:
		if chk.Path == "" {
			errs.Add(prefix+".path", "path is required for jsonpath checks")
		}
		switch scenario.JSONPathMatch(chk.Match) {
		case "", scenario.MatchExists, scenario.MatchEquals, scenario.MatchContains:
		default:
			errs.Add(prefix+".match", fmt.Sprintf("unknown match %q (use exists, eq or contains)", chk.Match))
		}

	case CheckSchema:
		if chk.Schema == "" {
			errs.Add(prefix+".schema", "schema is required for schema checks")
		} else if _, err := jsonschema.Compile(chk.Schema); err != nil {
			errs.Add(prefix+".schema", err.Error())
		}

	case "":
		errs.Add(prefix+".type", "check type is required")

	default:
		errs.Add(prefix+".type", fmt.Sprintf("unknown check type: %s", chk.Type))
	}
}
