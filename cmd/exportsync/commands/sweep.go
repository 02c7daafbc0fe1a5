package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/logger"
	"github.com/teranos/exportsync/sweep"
)

// SweepCmd uploads spreadsheets found in the drop folder
var SweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Upload spreadsheets found in the drop folder",
	Long: `Upload spreadsheets found in the drop folder.

Every .xlsx file in the folder is matched to an active symbol by its file name
(exact company name, then partial, then shared words). Matched files are
uploaded once and deleted on success; files that match nothing are moved to the
quarantine folder.

With --watch the folder is swept once, then again whenever new spreadsheets
arrive, until interrupted.

Examples:
  exportsync sweep
  exportsync sweep --dir ~/Downloads/exports
  exportsync sweep --watch --debounce 5s`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	sweepWatch    bool
	sweepDebounce time.Duration
)

func init() {
	SweepCmd.Flags().String("dir", "", "Drop folder (sweep.dir, defaults to run.download_dir)")
	SweepCmd.Flags().String("quarantine-dir", "", "Folder for unmatched files, relative to the drop folder (sweep.quarantine_dir)")
	SweepCmd.Flags().BoolVarP(&sweepWatch, "watch", "w", false, "Keep running and sweep when new files arrive")
	SweepCmd.Flags().DurationVar(&sweepDebounce, "debounce", sweep.DefaultDebounce, "Quiet period after the last file event before sweeping")

	BindConfigFlag(SweepCmd.Flags(), "dir", "sweep.dir")
	BindConfigFlag(SweepCmd.Flags(), "quarantine-dir", "sweep.quarantine_dir")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	dir := cfg.SweepDir()
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(errors.Mark(err, errors.ErrFileSystem), "create drop folder %s", dir)
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	log := commandLogger(cmd)
	sweeper := sweep.New(st.candidates, newUploader(cfg), sweepConfig(cfg),
		sweep.WithEmitter(newEmitter(cmd)),
		sweep.WithRecorder(st.history),
		sweep.WithLogger(log),
	)

	if !sweepWatch {
		stats, runErr := sweeper.Run(cmd.Context())
		if err := printStats(cmd, stats); err != nil {
			return err
		}
		return runErr
	}

	return sweep.Watch(cmd.Context(), dir, sweepDebounce, func(ctx context.Context) error {
		stats, runErr := sweeper.Run(ctx)
		if err := printStats(cmd, stats); err != nil {
			log.Warnw("Failed to print sweep result", logger.FieldError, err)
		}
		return runErr
	}, log)
}

func sweepConfig(cfg *am.Config) sweep.Config {
	return sweep.Config{
		Dir:                cfg.SweepDir(),
		QuarantineDir:      cfg.Sweep.QuarantineDir,
		Classification:     cfg.Run.Classification,
		ItemDelay:          cfg.SweepItemDelay(),
		ProgressEvery:      cfg.Sweep.ProgressEvery,
		AbortOnAuthFailure: cfg.Run.AbortOnAuthFailure,
	}
}
