package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a scenario file. Callers apply overrides and
// defaults, then Validate.
func LoadConfig(path string) (*TestConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses data as JSON when filename ends in .json and as YAML
// otherwise. Environment references are expanded but nothing is validated.
func ParseConfig(data []byte, filename string) (*TestConfig, error) {
	var cfg TestConfig

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing YAML config: %w", err)
		}
	}

	cfg.expandEnv()
	return &cfg, nil
}

// expandEnv resolves ${VAR} and $VAR in the host and header values.
func (c *TestConfig) expandEnv() {
	c.Target.Host = os.ExpandEnv(c.Target.Host)
	for k, v := range c.Target.Headers {
		c.Target.Headers[k] = os.ExpandEnv(v)
	}
}
