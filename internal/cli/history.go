package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/db"
	"github.com/lucasnoah/autocoder/internal/pipeline"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		d, closeDB, err := e.requireHistory()
		if err != nil {
			return err
		}
		defer closeDB()

		runs, err := d.ListRuns(limit)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTATUS\tKIND\tITER\tSTARTED\tDESCRIPTION")
		for _, r := range runs {
			desc := r.Description
			if len(desc) > 50 {
				desc = desc[:47] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				shortID(r.ID), r.Status, r.TaskKind, r.Iterations, r.MaxIterations, r.StartedAt, desc)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's events, verification results and saved state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		d, closeDB, err := e.requireHistory()
		if err != nil {
			return err
		}
		defer closeDB()

		id, err := resolveRunID(d, args[0])
		if err != nil {
			return err
		}
		run, err := d.GetRun(id)
		if err != nil {
			return err
		}
		events, err := d.GetRunEvents(id)
		if err != nil {
			return err
		}
		verifies, err := d.GetVerifyRuns(id)
		if err != nil {
			return err
		}

		var state *pipeline.State
		if store := e.artifacts(); store != nil {
			if state, err = store.GetState(id); err != nil {
				e.log.Debug("no saved run state", zap.String("run_id", id), zap.Error(err))
				state = nil
			}
		}

		if format == "json" {
			return writeJSON(cmd, struct {
				Run          *db.Run            `json:"run"`
				Events       []db.PipelineEvent `json:"events"`
				Verification []db.VerifyRun     `json:"verification"`
				State        *pipeline.State    `json:"state,omitempty"`
			}{run, events, verifies, state})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:         %s\n", run.ID)
		fmt.Fprintf(out, "Status:      %s\n", run.Status)
		fmt.Fprintf(out, "Task:        %s\n", run.Description)
		fmt.Fprintf(out, "Kind:        %s\n", run.TaskKind)
		fmt.Fprintf(out, "Iterations:  %d/%d\n", run.Iterations, run.MaxIterations)
		fmt.Fprintf(out, "Started:     %s\n", run.StartedAt)
		if run.FinishedAt != "" {
			fmt.Fprintf(out, "Finished:    %s\n", run.FinishedAt)
		}
		if run.Summary != "" {
			fmt.Fprintf(out, "\n%s\n", run.Summary)
		}

		if len(verifies) > 0 {
			fmt.Fprintln(out, "\nVerification:")
			for _, v := range verifies {
				status := "PASS"
				if !v.Succeeded {
					status = "FAIL"
				}
				fmt.Fprintf(out, "  [%s] attempt %d: %s (%dms)\n", status, v.Iteration+1, v.Summary, v.DurationMs)
			}
		}

		if len(events) > 0 {
			fmt.Fprintln(out, "\nEvents:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, ev := range events {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\n", ev.Timestamp, ev.Event, ev.Node, ev.Iteration, firstLine(ev.Detail))
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if state != nil && len(state.Changed) > 0 {
			fmt.Fprintf(out, "\nChanged files: %s\n", strings.Join(state.Changed, ", "))
		}
		return nil
	},
}

// resolveRunID accepts a full id or a unique prefix of a recent run.
func resolveRunID(d *db.DB, arg string) (string, error) {
	if r, err := d.GetRun(arg); err != nil {
		return "", err
	} else if r != nil {
		return r.ID, nil
	}

	runs, err := d.ListRuns(0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, arg) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("run %q not found", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "Maximum runs to show (0 for all)")
	historyListCmd.Flags().String("format", "text", "Output format: text or json")
	historyShowCmd.Flags().String("format", "text", "Output format: text or json")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
