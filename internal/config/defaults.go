package config

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/scenario"
	"github.com/wesleyorama2/genload/internal/vu"
	"github.com/wesleyorama2/genload/pkg/jsonschema"
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// Default returns the built-in scenario as a config for host.
func Default(host string) *TestConfig {
	cfg := &TestConfig{Target: TargetConfig{Host: host}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with the built-in scenario's value.
func (c *TestConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "generate"
	}
	if c.Executor == "" {
		c.Executor = string(executor.TypeRampingVUs)
	}

	if c.Target.Path == "" {
		c.Target.Path = scenario.DefaultPath
	}
	if c.Target.Method == "" {
		c.Target.Method = http.MethodPost
	}
	if c.Target.Timeout == 0 {
		c.Target.Timeout = Duration(DefaultTimeout)
	}
	if c.Target.Headers == nil {
		c.Target.Headers = map[string]string{}
	}
	if _, ok := c.Target.Headers["Content-Type"]; !ok {
		c.Target.Headers["Content-Type"] = "application/json"
	}

	if c.Executor == string(executor.TypeRampingVUs) && len(c.Stages) == 0 {
		for _, st := range scenario.DefaultProfile() {
			c.Stages = append(c.Stages, StageConfig{Duration: Duration(st.Duration), Target: st.Target, Name: st.Name})
		}
	}

	if c.Payload == nil {
		p := scenario.DefaultPayload()
		c.Payload = &p
	}
	if c.Pause == nil {
		p := Duration(scenario.DefaultPause)
		c.Pause = &p
	}
	if len(c.Checks) == 0 {
		def := scenario.DefaultCheck()
		c.Checks = []CheckConfig{{Name: def.Name(), Type: CheckStatus, Value: strconv.Itoa(def.Code)}}
	}
}

// Profile converts the stages.
func (c *TestConfig) Profile() scenario.Profile {
	p := make(scenario.Profile, len(c.Stages))
	for i, st := range c.Stages {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("stage-%d", i+1)
		}
		p[i] = scenario.Stage{Duration: time.Duration(st.Duration), Target: st.Target, Name: name}
	}
	return p
}

// ToScenario builds the runnable scenario. Call ApplyDefaults and Validate
// first.
func (c *TestConfig) ToScenario() (*scenario.Scenario, error) {
	checks := make([]scenario.Check, 0, len(c.Checks))
	for i, cc := range c.Checks {
		chk, err := cc.build()
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		checks = append(checks, chk)
	}

	headers := make(map[string]string, len(c.Target.Headers))
	for k, v := range c.Target.Headers {
		headers[k] = v
	}

	action := &scenario.Action{
		Name:    c.Name,
		Method:  c.Target.Method,
		Target:  scenario.Target{BaseURL: c.Target.Host, Path: c.Target.Path},
		Headers: headers,
		Checks:  checks,
		Timeout: time.Duration(c.Target.Timeout),
	}
	if c.Payload != nil {
		action.Payload = *c.Payload
	}
	if c.Pause != nil {
		action.Pause = time.Duration(*c.Pause)
	}

	sc := &scenario.Scenario{
		Name:    c.Name,
		Profile: c.Profile(),
		Action:  action,
	}
	if c.Executor == string(executor.TypeConstantVUs) && len(sc.Profile) == 0 {
		sc.Profile = scenario.Profile{{Duration: time.Duration(c.Duration), Target: c.VUs, Name: "constant"}}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// EngineOptions returns the run options the file declares.
func (c *TestConfig) EngineOptions() engine.Options {
	httpCfg := vu.DefaultHTTPClientConfig()
	httpCfg.Timeout = c.Target.Timeout.Or(DefaultTimeout)
	httpCfg.InsecureSkipVerify = c.Target.InsecureSkipVerify
	httpCfg.MaxConnsPerHost = c.Target.MaxConnsPerHost

	opts := engine.Options{
		Executor:     executor.Type(c.Executor),
		VUs:          c.VUs,
		Duration:     time.Duration(c.Duration),
		GracefulStop: time.Duration(c.GracefulStop),
		HTTP:         httpCfg,
	}
	if c.Thresholds != nil {
		opts.Thresholds = *c.Thresholds
	}
	return opts
}

func (cc CheckConfig) build() (scenario.Check, error) {
	switch cc.Type {
	case CheckStatus:
		code, err := strconv.Atoi(cc.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q: %w", cc.Value, err)
		}
		return scenario.StatusCheck{Label: cc.Name, Code: code}, nil

	case CheckJSONPath:
		return scenario.JSONPathCheck{
			Label: cc.Name,
			Path:  cc.Path,
			Match: scenario.JSONPathMatch(cc.Match),
			Value: cc.Value,
		}, nil

	case CheckSchema:
		s, err := jsonschema.Compile(cc.Schema)
		if err != nil {
			return nil, err
		}
		return scenario.SchemaCheck{Label: cc.Name, Schema: s}, nil

	default:
		return nil, fmt.Errorf("unknown check type: %s", cc.Type)
	}
}
