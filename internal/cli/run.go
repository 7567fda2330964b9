package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/genload/internal/config"
	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/output"
	"github.com/wesleyorama2/genload/internal/storage"
)

type runOptions struct {
	quiet     bool
	json      bool
	output    string
	format    string
	noHistory bool
	noColor   bool
	interval  time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run a load test",
		Long: `Run the scenario in the given file, or the built-in generation scenario when
no file is given.

Examples:
  genload run --host 10.0.0.5:8000
  genload run --host localhost:8000 --stages "10s:5,30s:5,10s:0" --pause 500ms
  genload run --host localhost:8000 --vus 20 --duration 1m --json
  genload run scenario.yaml --output results/run.junit.xml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cfg, opts)
		},
	}

	addScenarioFlags(cmd)
	f := cmd.Flags()
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "print only PASSED or FAILED")
	f.BoolVar(&opts.json, "json", false, "write the result as JSON to stdout")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to a file (format from extension)")
	f.StringVar(&opts.format, "format", "", "result file format: json, yaml or junit")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record the run in the history database")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.DurationVar(&opts.interval, "progress-interval", time.Second, "live progress refresh interval")

	return cmd
}

func (a *app) run(ctx context.Context, cfg *config.TestConfig, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sc, err := cfg.ToScenario()
	if err != nil {
		return err
	}

	engOpts := cfg.EngineOptions()
	engOpts.Logger = a.log

	eng, err := engine.New(sc, engOpts)
	if err != nil {
		return err
	}

	// With --json, stdout carries only the result document.
	consoleOut := a.out
	if opts.json {
		consoleOut = a.errOut
	}
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Name:     cfg.Name,
		Executor: executor.Type(cfg.Executor),
		Target:   eng.Target(),
		Writer:   consoleOut,
		Quiet:    opts.quiet,
		NoColor:  opts.noColor,
	})
	console.PrintHeader()

	// Cancelling ctx or a signal stops the run gracefully so the summary is
	// still reported.
	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	type runResult struct {
		result *engine.Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := eng.Run(context.WithoutCancel(ctx))
		done <- runResult{r, err}
	}()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	var rr runResult
	stopping := false
loop:
	for {
		select {
		case rr = <-done:
			break loop

		case <-sigCtx.Done():
			if !stopping {
				stopping = true
				a.log.Warn("interrupted, stopping gracefully")
				_ = eng.Stop(context.Background())
			}

		case <-ticker.C:
			if !eng.IsRunning() {
				continue
			}
			stats := output.StatsFromEngine(eng.Metrics(), eng.Stats(), eng.Progress())
			if console.IsTTY() {
				console.Update(stats)
			} else {
				console.PrintNonInteractiveUpdate(stats)
			}
		}
	}

	if rr.result == nil {
		return rr.err
	}
	if rr.err != nil {
		a.log.WithError(rr.err).Error("run ended with an error")
	}

	console.PrintSummary(rr.result)

	if opts.json {
		if err := output.WriteResult(a.out, rr.result, output.FormatJSON); err != nil {
			return err
		}
	}
	if opts.output != "" {
		format := output.FormatForPath(opts.output)
		if opts.format != "" {
			if format, err = output.ParseFormat(opts.format); err != nil {
				return err
			}
		}
		if err := output.WriteResultFile(opts.output, rr.result, format); err != nil {
			return err
		}
		a.log.WithField("file", opts.output).Info("result written")
	}

	if !opts.noHistory {
		a.saveHistory(rr.result)
	}

	if !rr.result.Passed {
		return ErrRunFailed
	}
	return nil
}

// saveHistory records the run; failures are logged, not returned.
func (a *app) saveHistory(r *engine.Result) {
	store, err := a.openHistory()
	if err != nil {
		a.log.WithError(err).Warn("history unavailable")
		return
	}
	defer store.Close()

	if err := store.Save(storage.RecordFromResult(r)); err != nil {
		a.log.WithError(err).Warn("failed to record run")
		return
	}
	a.log.WithField("run", r.RunID).Debug("run recorded")
}
