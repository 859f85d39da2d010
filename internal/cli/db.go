package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		_, closeDB, err := e.requireHistory()
		if err != nil {
			return err
		}
		defer closeDB()
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s history at %s\n", e.cfg.History.Driver, e.cfg.History.DSN)
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all run history (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to reset without --yes")
		}

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
		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run history reset.")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("yes", false, "Confirm the reset")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
