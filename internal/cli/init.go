package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autocoder/internal/config"
	"github.com/lucasnoah/autocoder/internal/prompt"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .autocoder/ with a default config in the project root",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("resolve project root: %w", err)
		}
		force, _ := cmd.Flags().GetBool("force")
		templates, _ := cmd.Flags().GetBool("templates")

		dir := filepath.Join(root, config.Dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", config.Dir, err)
		}

		path := filepath.Join(dir, config.FileName)
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil && !force:
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", path)
		default:
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		}

		if templates {
			written, err := prompt.Install(root)
			if err != nil {
				return err
			}
			for _, name := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Installed template %s\n", filepath.Join(prompt.OverrideDir, name))
			}
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config with defaults")
	initCmd.Flags().Bool("templates", false, "Copy the built-in prompt templates into .autocoder/templates")
}
