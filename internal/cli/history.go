package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/genload/internal/storage"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.out, "No runs recorded.")
				return nil
			}
			fmt.Fprintln(a.out, historyTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show RUN_ID",
			Short: "Print one recorded run as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openHistory()
				if err != nil {
					return err
				}
				defer store.Close()

				rec, err := store.Get(args[0])
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			},
		},
		&cobra.Command{
			Use:   "delete RUN_ID",
			Short: "Remove a recorded run",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openHistory()
				if err != nil {
					return err
				}
				defer store.Close()

				if err := store.Delete(args[0]); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				fmt.Fprintf(a.out, "Deleted %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func historyTable(runs []storage.RunRecord) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Name,
			r.Duration.Round(time.Second).String(),
			strconv.FormatInt(r.Requests, 10),
			fmt.Sprintf("%.1f", r.RPS),
			r.P95.Round(time.Millisecond).String(),
			fmt.Sprintf("%.2f%%", r.CheckRate*100),
			status,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "NAME", "DURATION", "REQS", "RPS", "P95", "CHECKS", "STATUS").
		Rows(rows...).
		String()
}
