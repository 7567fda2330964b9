package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/genload/internal/stub"
)

func newStubCmd(a *app) *cobra.Command {
	var (
		port int
		opts stub.Options
	)

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a fake generation endpoint for local testing",
		Long: `Serve POST /generate and GET /health. Every request can inject faults with
?status=503 and ?delay=250ms; --status and --delay apply them to all requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Logger = a.log
			s := stub.New(opts)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf(":%d", port)
			fmt.Fprintf(a.out, "stub serving on %s (POST /generate, GET /health)\n", addr)
			return s.ListenAndServe(ctx, addr)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&port, "port", "p", 8000, "port to listen on")
	f.IntVar(&opts.Status, "status", 0, "status code for every generation request")
	f.DurationVar(&opts.Delay, "delay", 0, "latency added to every generation request")
	f.StringVar(&opts.Model, "model", "", "model name reported in responses")
	return cmd
}
