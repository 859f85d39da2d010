package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autocoder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		errs := config.Validate(e.cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		data, err := config.Marshal(e.cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		source := e.cfgPath
		if source == "" {
			source = "built-in defaults"
		}
		cmd.Printf("# source: %s\n", source)
		cmd.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
