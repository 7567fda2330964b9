package scenario

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Options carries generation parameters for the target model.
type Options struct {
	NumTokens int `json:"num_tokens" yaml:"num_tokens"`
}

// Payload is the body POSTed to the generation endpoint.
type Payload struct {
	Model   string  `json:"model,omitempty" yaml:"model,omitempty"`
	Prompt  string  `json:"prompt" yaml:"prompt"`
	Format  string  `json:"format,omitempty" yaml:"format,omitempty"`
	Stream  bool    `json:"stream,omitempty" yaml:"stream,omitempty"`
	Options Options `json:"options" yaml:"options"`
}

// DefaultPayload returns {"prompt":"Hello World","options":{"num_tokens":10}}.
func DefaultPayload() Payload {
	return Payload{
		Prompt:  "Hello World",
		Options: Options{NumTokens: 10},
	}
}

// Encode serializes the payload for the wire.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a generation request body.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// DefaultPath is the generation endpoint path.
const DefaultPath = "/generate"

// Target identifies the service under test.
type Target struct {
	// BaseURL is scheme://host[:port]. A bare host gets http://.
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
	Path    string `json:"path" yaml:"path"`
}

// URL returns the full endpoint URL.
func (t Target) URL() (string, error) {
	base := strings.TrimSpace(t.BaseURL)
	if base == "" {
		return "", fmt.Errorf("target host is required")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid target host %q: %w", t.BaseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid target host %q: missing host", t.BaseURL)
	}

	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String(), nil
}
