package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autocoder/internal/orchestrator"
)

var taskCmd = &cobra.Command{
	Use:   "task <description>",
	Short: "Run the pipeline for a task until tests pass or retries run out",
	Long: `Runs the full pipeline for one task:

  list files → interpret task → build context → generate → apply → verify

A failing verification feeds the test output back into the next generation,
up to pipeline.max_iterations retries. The command exits non-zero when the
run escalates or the file lists are not approved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args, " ")
		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		refresh, _ := cmd.Flags().GetBool("refresh")
		approvalMode, _ := cmd.Flags().GetString("approval")
		format, _ := cmd.Flags().GetString("format")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, closeDeps, err := e.newOrchestrator(ctx, cmd, runOptions{
			maxIterations: maxIter,
			refresh:       refresh,
			approval:      approvalMode,
		})
		if err != nil {
			return err
		}
		defer closeDeps()
		if format != "json" {
			orch.SetProgress(cmd.ErrOrStderr())
		}

		res, err := orch.Run(ctx, description)
		if err != nil {
			return err
		}

		if format == "json" {
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary)
		}

		switch res.Outcome {
		case orchestrator.OutcomeDone:
			return nil
		case orchestrator.OutcomeAborted:
			return fmt.Errorf("run %s aborted", res.State.RunID)
		default:
			return fmt.Errorf("run %s escalated", res.State.RunID)
		}
	},
}

func init() {
	taskCmd.Flags().Int("max-iterations", 0, "Retry budget (default from config)")
	taskCmd.Flags().Bool("refresh", false, "Reclassify project files even if saved lists exist")
	taskCmd.Flags().String("approval", "", "Approval mode: prompt, tui or auto (default from config)")
	taskCmd.Flags().String("format", "text", "Output format: text or json")
}
