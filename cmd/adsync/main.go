package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/adlibrary-sync/cmd/adsync/commands"
)

var rootCmd = &cobra.Command{
	Use:   "adsync",
	Short: "Incremental sync of Ad Library listings",
	Long: `adsync collects records from a paginated Ad Library listing.

Available commands:
  initial     - Full sync of a listing URL
  incremental - Collect records added since the last sync
  serve       - Start the HTTP API
  watch       - Print NEW_RECORD_DETECTED events

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.Setup(cmd)
	},
}

func init() {
	rootCmd.AddCommand(commands.InitialCmd)
	rootCmd.AddCommand(commands.IncrementalCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.WatchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", commands.DescribeError(err))
		os.Exit(1)
	}
}
