package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/fetch"
	"github.com/teranos/exportsync/ingest"
	"github.com/teranos/exportsync/logger"
)

// FetchCmd fetches one symbol's export, optionally uploading it
var FetchCmd = &cobra.Command{
	Use:   "fetch <symbol>",
	Short: "Fetch one symbol's export (and optionally upload it)",
	Long: `Fetch one symbol's export into the download folder.

Useful for checking that the upstream provider and the ingestion endpoint are
reachable before a long run. Any symbol can be fetched; a warning is printed
when the candidate store would not select it. With --upload the export is
posted once (no retries) and deleted on success.

Examples:
  exportsync fetch TCS
  exportsync fetch RELIANCE --upload --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var fetchUpload bool

func init() {
	FetchCmd.Flags().BoolVar(&fetchUpload, "upload", false, "Upload the export after fetching it")
	FetchCmd.Flags().String("download-dir", "", "Where the export is written (run.download_dir)")
	BindConfigFlag(FetchCmd.Flags(), "download-dir", "run.download_dir")
}

type fetchResult struct {
	Artifact *fetch.Artifact `json:"artifact"`
	Upload   *ingest.Outcome `json:"upload,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(fetchUpload)
	if err != nil {
		return err
	}
	symbol := candidate.Normalize(args[0])

	if notice := lookupNotice(cmd.Context(), cfg, symbol); notice != "" && !display.ShouldOutputJSON(cmd) {
		fmt.Fprint(out(cmd), pterm.Warning.Sprintln(notice))
	}

	artifact, err := newFetcher(cfg).Fetch(cmd.Context(), symbol)
	if err != nil {
		return err
	}
	result := fetchResult{Artifact: artifact}

	if fetchUpload {
		outcome := newUploader(cfg).Upload(cmd.Context(), symbol, artifact.LocalPath)
		result.Upload = &outcome
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.WriteJSON(out(cmd), result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out(cmd), pterm.Success.Sprintf("Fetched %s: %s\n", symbol, artifact))
		if result.Upload != nil && result.Upload.OK() {
			msg := "Uploaded " + symbol
			if result.Upload.Message != "" {
				msg += ": " + result.Upload.Message
			}
			fmt.Fprint(out(cmd), pterm.Success.Sprintln(msg))
		}
	}

	if result.Upload != nil {
		return result.Upload.Err()
	}
	return nil
}

// symbolGetter is the part of candidate.Store the fetch command reads.
type symbolGetter interface {
	Get(ctx context.Context, symbol string) (*candidate.Symbol, error)
}

// lookupNotice checks symbol against the candidate store. The store is
// optional here, so an unreachable database only logs.
func lookupNotice(ctx context.Context, cfg *am.Config, symbol string) string {
	st, err := openStores(cfg)
	if err != nil {
		logger.Logger.Debugw("Candidate store unavailable; skipping lookup", logger.FieldError, err)
		return ""
	}
	defer st.Close()

	notice, err := candidateNotice(ctx, st.candidates, symbol, cfg.Run.Classification)
	if err != nil {
		logger.Logger.Debugw("Candidate lookup failed", logger.FieldSymbol, symbol, logger.FieldError, err)
		return ""
	}
	return notice
}

// candidateNotice explains why a sync run would not pick symbol, or returns "".
func candidateNotice(ctx context.Context, store symbolGetter, symbol, classification string) (string, error) {
	if classification == "" {
		classification = candidate.DefaultClassification
	}
	s, err := store.Get(ctx, symbol)
	if err != nil {
		return "", err
	}
	switch {
	case s == nil:
		return fmt.Sprintf("%s is not in the candidate store", symbol), nil
	case !s.Active:
		return fmt.Sprintf("%s is inactive in the candidate store", symbol), nil
	case s.Classification != classification:
		return fmt.Sprintf("%s is classified %s, runs select %s", symbol, s.Classification, classification), nil
	case s.HasDocument:
		return fmt.Sprintf("%s already has a document; uploading replaces it", symbol), nil
	}
	return "", nil
}
