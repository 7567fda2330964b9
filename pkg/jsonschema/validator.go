// Package jsonschema validates response bodies against JSON Schema documents.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violations lists every reason a document failed validation.
type Violations []string

func (v Violations) Error() string {
	return strings.Join(v, "; ")
}

// Schema is a compiled JSON Schema, safe for concurrent use.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile parses and compiles a schema document.
func Compile(schema string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{compiled: s}, nil
}

// Validate returns nil when body conforms, Violations when it does not, and a
// plain error when body is not JSON.
func (s *Schema) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	err := s.compiled.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return collect(verr)
	}
	return Violations{err.Error()}
}

func collect(err *jsonschema.ValidationError) Violations {
	var out Violations
	if err.Message != "" {
		out = append(out, fmt.Sprintf("%s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		out = append(out, collect(cause)...)
	}
	return out
}
