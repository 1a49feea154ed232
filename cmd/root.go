package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dbdiag",
	Short: "Multi-hypothesis database-incident diagnosis engine",
	Long: `dbdiag builds a standardized phenomenon/root-cause knowledge graph from
historical incident tickets and conducts a multi-turn dialogue that
converges on a root cause, citing the tickets that support it.`,
}

// ExecuteWithExitCode runs the root command and returns the process exit
// code to use, per spec §6.2's exit code table.
func ExecuteWithExitCode() int {
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitCode(err)
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".dbdiag.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
