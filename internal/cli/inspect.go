package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/genload/internal/config"
)

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [scenario.yaml]",
		Short: "Print the resolved scenario without sending requests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return a.inspect(cfg)
		},
	}
	addScenarioFlags(cmd)
	return cmd
}

func (a *app) inspect(cfg *config.TestConfig) error {
	sc, err := cfg.ToScenario()
	if err != nil {
		return err
	}
	url, err := sc.Action.Target.URL()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Target:   %s %s\n", sc.Action.Method, url)
	fmt.Fprintf(a.out, "Executor: %s\n", cfg.Executor)
	fmt.Fprintf(a.out, "Stages:   %s\n", sc.Profile)
	fmt.Fprintf(a.out, "Duration: %s (peak %d VUs)\n", totalDuration(cfg), sc.Profile.MaxTarget())
	fmt.Fprintf(a.out, "Pause:    %s\n", sc.Action.Pause)

	body, err := sc.Action.Payload.Encode()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Payload:  %s\n", body)

	fmt.Fprintln(a.out, "Checks:")
	for _, c := range sc.Action.Checks {
		fmt.Fprintf(a.out, "  - %s\n", c.Name())
	}
	fmt.Fprintln(a.out)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render scenario: %w", err)
	}
	fmt.Fprintln(a.out, "# resolved scenario")
	_, err = a.out.Write(data)
	return err
}
