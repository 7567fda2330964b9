package scenario

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wesleyorama2/genload/pkg/jsonpath"
	"github.com/wesleyorama2/genload/pkg/jsonschema"
)

// Response is what one request produced. A transport failure leaves
// StatusCode at zero and sets Err.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Duration   time.Duration
	Err        error
}

// Failed reports whether the request counts as failed: no response at all, or
// a status of 400 and above.
func (r *Response) Failed() bool {
	return r.Err != nil || r.StatusCode == 0 || r.StatusCode >= 400
}

// Check is a named boolean assertion on a response.
type Check interface {
	Name() string
	Evaluate(resp *Response) bool
}

// CheckResult is the outcome of one check on one response.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// StatusCheck passes when the response status equals Code.
type StatusCheck struct {
	Label string
	Code  int
}

// DefaultCheck is the "is status 200" check.
func DefaultCheck() StatusCheck {
	return StatusCheck{Label: "is status 200", Code: http.StatusOK}
}

func (c StatusCheck) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return fmt.Sprintf("is status %d", c.Code)
}

func (c StatusCheck) Evaluate(resp *Response) bool {
	return resp != nil && resp.Err == nil && resp.StatusCode == c.Code
}

// JSONPathMatch selects how JSONPathCheck compares the extracted value.
type JSONPathMatch string

const (
	MatchExists   JSONPathMatch = "exists"
	MatchEquals   JSONPathMatch = "eq"
	MatchContains JSONPathMatch = "contains"
)

// JSONPathCheck asserts on a value inside a JSON response body.
type JSONPathCheck struct {
	Label string
	Path  string
	Match JSONPathMatch
	Value string
}

func (c JSONPathCheck) Name() string {
	if c.Label != "" {
		return c.Label
	}
	if c.Match == MatchExists || c.Match == "" {
		return fmt.Sprintf("has %s", c.Path)
	}
	return fmt.Sprintf("%s %s %q", c.Path, c.Match, c.Value)
}

func (c JSONPathCheck) Evaluate(resp *Response) bool {
	if resp == nil || resp.Err != nil {
		return false
	}

	v, found, err := jsonpath.Lookup(resp.Body, c.Path)
	if err != nil || !found {
		return false
	}

	switch c.Match {
	case MatchEquals:
		return v == c.Value
	case MatchContains:
		return strings.Contains(v, c.Value)
	default:
		return true
	}
}

// SchemaCheck passes when the body validates against a JSON Schema.
type SchemaCheck struct {
	Label  string
	Schema *jsonschema.Schema
}

func (c SchemaCheck) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return "matches schema"
}

func (c SchemaCheck) Evaluate(resp *Response) bool {
	if resp == nil || resp.Err != nil || c.Schema == nil {
		return false
	}
	return c.Schema.Validate(resp.Body) == nil
}
