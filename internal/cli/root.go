package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	rootDir    string
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "autocoder",
	Short: "Verify-driven code modification for a local project",
	Long: `autocoder takes a task described in plain language, decides which project
files matter, asks a generation service for whole-file changes, writes them
and runs the project's tests. Failing tests are fed back for another attempt
until they pass or the retry budget runs out.

Project state lives in .autocoder/ under the project root: the approved file
lists, config.yaml, per-run artifacts and the run history database.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "C", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <root>/.autocoder/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(historyCmd)
}
