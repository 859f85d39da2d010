package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autocoder/internal/analytics"
)

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Outcome rates, attempts needed, verification times and escalation causes",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
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

		outcomes, err := analytics.QueryOutcomes(d, since)
		if err != nil {
			return err
		}
		kinds, err := analytics.QueryKindSuccess(d, since)
		if err != nil {
			return err
		}
		attempts, err := analytics.QueryAttempts(d, since)
		if err != nil {
			return err
		}
		durations, err := analytics.QueryVerifyDurations(d, since)
		if err != nil {
			return err
		}
		causes, err := analytics.QueryEscalationCauses(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			return writeJSON(cmd, map[string]interface{}{
				"outcomes":          outcomes,
				"kinds":             kinds,
				"attempts":          attempts,
				"verify_durations":  durations,
				"escalation_causes": causes,
			})
		}

		if len(outcomes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tRUNS\tPCT")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", o.Status, o.Count, o.Pct)
		}

		fmt.Fprintln(w, "\nKIND\tRUNS\tDONE\tESCALATED\tABORTED")
		for _, k := range kinds {
			fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1f%%\t%.1f%%\n", k.Kind, k.Total, k.Done, k.Escalated, k.Aborted)
		}

		if len(attempts) > 0 {
			fmt.Fprintln(w, "\nATTEMPTS\tRUNS\tPCT")
			for _, a := range attempts {
				fmt.Fprintf(w, "%d\t%d\t%.1f%%\n", a.Attempts, a.Count, a.Pct)
			}
		}

		if len(durations) > 0 {
			fmt.Fprintln(w, "\nCOMMAND\tRUNS\tAVG\tP50\tP95\tPASSED")
			for _, v := range durations {
				fmt.Fprintf(w, "%s\t%d\t%.1fs\t%.1fs\t%.1fs\t%.1f%%\n", v.Command, v.Count, v.Avg, v.P50, v.P95, v.Passed)
			}
		}

		if len(causes) > 0 {
			fmt.Fprintln(w, "\nNODE\tCATEGORY\tCOUNT")
			for _, c := range causes {
				fmt.Fprintf(w, "%s\t%s\t%d\n", c.Node, c.Category, c.Count)
			}
		}
		return w.Flush()
	},
}

func init() {
	historyStatsCmd.Flags().String("since", "", "Only count runs started on or after this date (e.g. 2026-01-01)")
	historyStatsCmd.Flags().String("format", "text", "Output format: text or json")
	historyCmd.AddCommand(historyStatsCmd)
}
