package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autocoder/internal/classify"
	appctx "github.com/lucasnoah/autocoder/internal/context"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect the context sent to the generation service",
}

var contextBuildCmd = &cobra.Command{
	Use:   "build [paths...]",
	Short: "Print the assembled context for the saved lists or the given paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxBytes, _ := cmd.Flags().GetInt("max-file-bytes")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		paths := args
		if len(paths) == 0 {
			store := classify.NewStore(e.files)
			if !store.Exists() {
				return fmt.Errorf("no saved file lists; pass paths or run 'autocoder files classify'")
			}
			res, err := store.Load()
			if err != nil {
				return err
			}
			paths = res.Included
		}
		if !cmd.Flags().Changed("max-file-bytes") {
			maxBytes = e.cfg.Context.MaxFileBytes
		}

		snap := appctx.NewAssembler(e.files).Build(paths).Truncate(maxBytes)
		fmt.Fprint(cmd.OutOrStdout(), snap.Text)
		for p, err := range snap.Unreadable {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", p, err)
		}
		for _, p := range snap.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "truncated: %s\n", p)
		}
		return nil
	},
}

func init() {
	contextBuildCmd.Flags().Int("max-file-bytes", 0, "Truncate each file body to this many bytes (default from config)")
	contextCmd.AddCommand(contextBuildCmd)
}
