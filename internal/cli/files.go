package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/autocoder/internal/classify"
	"github.com/lucasnoah/autocoder/internal/llm"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Classify and inspect the project file lists",
}

var filesClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Propose, review and save the included and excluded file lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		depthFlag, _ := cmd.Flags().GetString("depth")
		approvalMode, _ := cmd.Flags().GetString("approval")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		depthValue := e.cfg.Classify.Depth
		if depthFlag != "" {
			depthValue = depthFlag
		}
		depth, err := classify.ParseDepth(depthValue)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var client llm.Client
		if e.cfg.Classify.Categorizer != "none" {
			client, err = e.llmClient(ctx)
			if err != nil {
				e.log.Warn("categorizing without the generation service", zap.Error(err))
				client = nil
			}
		}

		cls, err := e.classifier(cmd, client, approvalMode)
		if err != nil {
			return err
		}
		res, err := cls.Run(ctx, depth, classify.NewStore(e.files))
		if errors.Is(err, classify.ErrAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted. No lists were saved.")
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d included and %d excluded items.\n", len(res.Included), len(res.Excluded))
		return nil
	},
}

var filesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved file lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		store := classify.NewStore(e.files)
		if !store.Exists() {
			return fmt.Errorf("no saved file lists; run 'autocoder files classify' first")
		}
		res, err := store.Load()
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd, res)
		}
		w := cmd.OutOrStdout()
		printItems(w, "Project Items:", res.Included)
		printItems(w, "Excluded Items:", res.Excluded)
		return nil
	},
}

func printItems(w io.Writer, title string, items []string) {
	fmt.Fprintln(w, title)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func init() {
	filesClassifyCmd.Flags().String("depth", "", "Listing depth: top-level or recursive (default from config)")
	filesClassifyCmd.Flags().String("approval", "", "Approval mode: prompt, tui or auto (default from config)")
	filesShowCmd.Flags().String("format", "text", "Output format: text or json")

	filesCmd.AddCommand(filesClassifyCmd)
	filesCmd.AddCommand(filesShowCmd)
}
