package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/genload/internal/config"
	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/scenario"
)

// addScenarioFlags registers the flags that override a scenario file.
func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "target host[:port] or base URL (env GENLOAD_HOST)")
	f.String("path", "", "endpoint path (default /generate)")
	f.String("stages", "", `ramping stages, e.g. "30s:10,1m:10,30s:0"`)
	f.Int("vus", 0, "constant VUs; requires --duration")
	f.String("duration", "", "constant-vus duration, e.g. 1m or 60")
	f.String("pause", "", "think time after each iteration, e.g. 1s or 0")
	f.String("prompt", "", "prompt to send")
	f.Int("num-tokens", 0, "num_tokens generation option")
	f.Duration("timeout", 0, "per-request timeout (default 30s)")
	f.Bool("insecure", false, "skip TLS certificate verification")
}

// resolveConfig loads the scenario file in args, or starts from an empty
// config, applies flag and environment overrides, fills defaults and
// validates.
func (a *app) resolveConfig(cmd *cobra.Command, args []string) (*config.TestConfig, error) {
	cfg := &config.TestConfig{}
	if len(args) > 0 {
		loaded, err := config.LoadConfig(args[0])
		if err != nil {
			return nil, err
		}
		cfg = loaded
		a.log.WithField("file", args[0]).Debug("scenario loaded")
	}

	if err := a.applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) applyOverrides(cmd *cobra.Command, cfg *config.TestConfig) error {
	f := cmd.Flags()

	if f.Changed("host") {
		cfg.Target.Host, _ = f.GetString("host")
	} else if cfg.Target.Host == "" {
		cfg.Target.Host = a.v.GetString("host")
	}
	if f.Changed("path") {
		cfg.Target.Path, _ = f.GetString("path")
	}
	if f.Changed("timeout") {
		d, _ := f.GetDuration("timeout")
		cfg.Target.Timeout = config.Duration(d)
	}
	if f.Changed("insecure") {
		cfg.Target.InsecureSkipVerify, _ = f.GetBool("insecure")
	}

	if f.Changed("stages") && f.Changed("vus") {
		return fmt.Errorf("--stages and --vus cannot be combined")
	}

	if f.Changed("stages") {
		raw, _ := f.GetString("stages")
		profile, err := scenario.ParseProfile(raw)
		if err != nil {
			return fmt.Errorf("invalid --stages: %w", err)
		}
		cfg.Executor = string(executor.TypeRampingVUs)
		cfg.Stages = cfg.Stages[:0]
		for _, st := range profile {
			cfg.Stages = append(cfg.Stages, config.StageConfig{
				Duration: config.Duration(st.Duration),
				Target:   st.Target,
				Name:     st.Name,
			})
		}
	}

	if f.Changed("vus") || f.Changed("duration") {
		if !f.Changed("vus") || !f.Changed("duration") {
			return fmt.Errorf("--vus and --duration must be given together")
		}
		vus, _ := f.GetInt("vus")
		raw, _ := f.GetString("duration")
		d, err := config.ParseDurationString(raw)
		if err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Executor = string(executor.TypeConstantVUs)
		cfg.VUs = vus
		cfg.Duration = config.Duration(d)
		cfg.Stages = nil
	}

	if f.Changed("pause") {
		raw, _ := f.GetString("pause")
		d, err := config.ParseDurationString(raw)
		if err != nil {
			return fmt.Errorf("invalid --pause: %w", err)
		}
		p := config.Duration(d)
		cfg.Pause = &p
	}

	if f.Changed("prompt") || f.Changed("num-tokens") {
		if cfg.Payload == nil {
			p := scenario.DefaultPayload()
			cfg.Payload = &p
		}
		if f.Changed("prompt") {
			cfg.Payload.Prompt, _ = f.GetString("prompt")
		}
		if f.Changed("num-tokens") {
			cfg.Payload.Options.NumTokens, _ = f.GetInt("num-tokens")
		}
	}
	return nil
}

// totalDuration is how long the configured load lasts, excluding the graceful
// stop.
func totalDuration(cfg *config.TestConfig) time.Duration {
	if cfg.Executor == string(executor.TypeConstantVUs) {
		return time.Duration(cfg.Duration)
	}
	return cfg.Profile().TotalDuration()
}
