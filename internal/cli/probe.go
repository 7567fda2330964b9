package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/genload/internal/output"
	"github.com/wesleyorama2/genload/internal/vu"
)

func newProbeCmd(a *app) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "probe [scenario.yaml]",
		Short: "Send a single generation request and show the response and checks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			sc, err := cfg.ToScenario()
			if err != nil {
				return err
			}

			action := *sc.Action
			action.Pause = 0

			httpCfg := cfg.EngineOptions().HTTP
			client := vu.NewHTTPClient(httpCfg)
			defer client.CloseIdleConnections()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			url, _ := action.Target.URL()
			out := action.Do(ctx, client)
			resp := out.Response

			colors := output.DefaultColorScheme()
			if noColor || !output.IsTerminal(a.out) {
				colors = output.NoColorScheme()
			}

			fmt.Fprintf(a.out, "%s %s\n", colors.Highlight.Sprint(action.Method), url)
			if resp.Err != nil {
				fmt.Fprintf(a.out, "%s %v\n", colors.Error.Sprint("Error:"), resp.Err)
			} else {
				status := colors.Success
				if resp.Failed() {
					status = colors.Error
				}
				fmt.Fprintf(a.out, "%s in %s\n", status.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), resp.Duration)
				fmt.Fprintf(a.out, "%s\n", resp.Body)
			}

			fmt.Fprintln(a.out)
			for _, c := range out.Checks {
				icon := colors.SuccessIcon()
				if !c.Passed {
					icon = colors.ErrorIcon()
				}
				fmt.Fprintf(a.out, "%s %s\n", icon, c.Name)
			}

			if !out.Passed() {
				return ErrRunFailed
			}
			return nil
		},
	}

	addScenarioFlags(cmd)
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}
