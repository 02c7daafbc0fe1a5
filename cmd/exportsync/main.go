package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/cmd/exportsync/commands"
	"github.com/teranos/exportsync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "exportsync",
	Short: "exportsync - fetch per-symbol financial exports and push them to ingestion",
	Long: `exportsync - fetch per-symbol financial exports and push them to ingestion.

Selects active symbols that still lack a financial document, downloads each
symbol's spreadsheet export from the upstream provider, and uploads it to the
authenticated ingestion endpoint. A sweep reconciles spreadsheets dropped into
the download folder by hand.

Available commands:
  sync        - Fetch and upload every pending candidate
  sweep       - Upload spreadsheets found in the drop folder
  fetch       - Fetch (and optionally upload) a single symbol
  candidates  - Inspect and seed the candidate store
  runs        - Show sync and sweep history
  am          - Manage exportsync configuration

Examples:
  exportsync sync --mode importance --limit 100
  exportsync sync --symbols TCS,INFY
  exportsync sweep --watch
  exportsync candidates stats
  exportsync am show --sources`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: commands.Prepare,
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON (log.json)")
	commands.BindConfigFlag(rootCmd.PersistentFlags(), "log-json", "log.json")

	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.SweepCmd)
	rootCmd.AddCommand(commands.FetchCmd)
	rootCmd.AddCommand(commands.CandidatesCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()

	if err != nil {
		commands.ReportError(os.Stderr, err)
		os.Exit(1)
	}
}
