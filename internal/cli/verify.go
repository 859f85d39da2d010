package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the configured test command once and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		e, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		v := e.verifier()
		res := v.Verify(cmd.Context(), e.root)

		if format == "json" {
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
		} else {
			status := "PASS"
			if !res.Succeeded {
				status = "FAIL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s (%dms)\n", status, res.Command, res.Summary, res.Duration.Milliseconds())
			if !res.Succeeded && res.Detail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Detail)
			}
		}
		if !res.Succeeded {
			return fmt.Errorf("verification failed")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("format", "text", "Output format: text or json")
}
