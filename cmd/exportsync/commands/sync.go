package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/batch"
	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/errors"
)

// SyncCmd runs the batch pipeline over pending candidates
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and upload exports for every pending candidate",
	Long: `Fetch and upload exports for every pending candidate.

Candidates are active symbols of the configured classification that have no
document yet. They are processed in chunks with a pause between symbols and a
longer pause between chunks. Symbols with no upstream export are skipped; upload
failures are retried and, when they persist, written to the failure file.

Modes:
  all         every pending symbol, in symbol order (default)
  importance  every pending symbol, largest market lot and face value first
  priority    the built-in large-cap list, in list order
  list        symbols from --symbols or --list-file, in the given order

Examples:
  exportsync sync
  exportsync sync --mode priority
  exportsync sync --symbols TCS,INFY,RELIANCE
  exportsync sync --list-file watchlist.yaml --batch-size 10
  exportsync sync --limit 20 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncSymbols  string
	syncListFile string
	syncLimit    int
	syncDryRun   bool
)

func init() {
	SyncCmd.Flags().String("mode", "", "Candidate mode: all, importance, priority, list (run.mode)")
	SyncCmd.Flags().String("classification", "", "Series to process (run.classification)")
	SyncCmd.Flags().Int("batch-size", 0, "Symbols per chunk (run.batch_size)")
	SyncCmd.Flags().Int("item-delay-ms", 0, "Pause between symbols in milliseconds (run.item_delay_ms)")
	SyncCmd.Flags().Int("batch-delay", 0, "Pause between chunks in seconds (run.batch_delay_seconds)")
	SyncCmd.Flags().Int("max-retries", 0, "Upload retries after the first attempt (run.max_retries)")
	SyncCmd.Flags().String("download-dir", "", "Where exports are written (run.download_dir)")
	SyncCmd.Flags().String("failed-file", "", "Failure file path, empty to disable (run.failed_file)")
	SyncCmd.Flags().StringVar(&syncSymbols, "symbols", "", "Comma-separated symbols; implies --mode list")
	SyncCmd.Flags().StringVar(&syncListFile, "list-file", "", "Text or YAML file of symbols; implies --mode list")
	SyncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Process at most this many candidates (0 = all)")
	SyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Select and plan only; nothing is fetched or uploaded")

	BindConfigFlag(SyncCmd.Flags(), "mode", "run.mode")
	BindConfigFlag(SyncCmd.Flags(), "classification", "run.classification")
	BindConfigFlag(SyncCmd.Flags(), "batch-size", "run.batch_size")
	BindConfigFlag(SyncCmd.Flags(), "item-delay-ms", "run.item_delay_ms")
	BindConfigFlag(SyncCmd.Flags(), "batch-delay", "run.batch_delay_seconds")
	BindConfigFlag(SyncCmd.Flags(), "max-retries", "run.max_retries")
	BindConfigFlag(SyncCmd.Flags(), "download-dir", "run.download_dir")
	BindConfigFlag(SyncCmd.Flags(), "failed-file", "run.failed_file")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncLimit < 0 {
		return errors.Newf("--limit must be >= 0, got %d", syncLimit)
	}

	// a dry run never uploads, so it runs without a token
	cfg, err := loadConfig(!syncDryRun)
	if err != nil {
		return err
	}

	src, err := syncSource(cfg.Run.Mode, syncSymbols, syncListFile)
	if err != nil {
		return err
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := syncOptions(cfg)
	opts.Limit = syncLimit
	opts.DryRun = syncDryRun

	orch := batch.New(st.candidates, newFetcher(cfg), newUploader(cfg), opts,
		batch.WithEmitter(newEmitter(cmd)),
		batch.WithRecorder(st.history),
		batch.WithLogger(commandLogger(cmd)),
	)

	stats, runErr := orch.Run(cmd.Context(), src)
	if err := printStats(cmd, stats); err != nil {
		return err
	}
	return runErr
}

// syncSource resolves the candidate source. Explicit symbols or a list file
// select list mode whatever the configured mode is.
func syncSource(mode, symbols, listFile string) (candidate.Source, error) {
	var list []string
	if symbols != "" {
		list = append(list, candidate.SplitSymbols(symbols)...)
	}
	if listFile != "" {
		fromFile, err := candidate.ReadListFile(listFile)
		if err != nil {
			return candidate.Source{}, err
		}
		list = append(list, fromFile...)
	}

	if symbols != "" || listFile != "" {
		if len(list) == 0 {
			return candidate.Source{}, errors.New("no symbols given in --symbols or --list-file")
		}
		return candidate.Source{Mode: candidate.ModeList, Symbols: list}, nil
	}

	m, err := candidate.ParseMode(mode)
	if err != nil {
		return candidate.Source{}, err
	}
	if m == candidate.ModeList {
		return candidate.Source{}, errors.WithHint(
			errors.New("list mode needs symbols"),
			"pass --symbols A,B,C or --list-file path",
		)
	}
	return candidate.Source{Mode: m}, nil
}

// syncOptions maps configuration onto orchestrator options.
func syncOptions(cfg *am.Config) batch.Options {
	return batch.Options{
		Classification:     cfg.Run.Classification,
		BatchSize:          cfg.Run.BatchSize,
		ItemDelay:          cfg.ItemDelay(),
		BatchDelay:         cfg.BatchDelay(),
		MaxRetries:         cfg.Run.MaxRetries,
		RetryBackoff:       cfg.RetryBackoff(),
		ProgressEvery:      cfg.Run.ProgressEvery,
		FailedFile:         cfg.Run.FailedFile,
		AbortOnAuthFailure: cfg.Run.AbortOnAuthFailure,
	}
}
