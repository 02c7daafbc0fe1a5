package commands

import (
	"database/sql"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/fetch"
	"github.com/teranos/exportsync/history"
	"github.com/teranos/exportsync/ingest"
	"github.com/teranos/exportsync/internal/httpclient"
	"github.com/teranos/exportsync/logger"
	"github.com/teranos/exportsync/pulse"
	"github.com/teranos/exportsync/pulse/budget"
	"github.com/teranos/exportsync/version"
)

// loadConfig loads and validates configuration. Commands that upload pass
// forUpload to require the ingest token as well.
func loadConfig(forUpload bool) (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if forUpload {
		err = cfg.ValidateForUpload()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// stores bundles the database-backed dependencies of a command.
type stores struct {
	conn       *sql.DB
	candidates *candidate.Store
	history    *history.Store
}

// openStores opens and migrates the configured database.
func openStores(cfg *am.Config) (*stores, error) {
	conn, err := db.OpenWithMigrations(cfg.Database.DSN, logger.Logger.Named("db"))
	if err != nil {
		return nil, errors.StoreUnavailable(err, "open database")
	}
	dialect := db.DialectFor(cfg.Database.DSN)
	return &stores{
		conn:       conn,
		candidates: candidate.NewStore(conn, dialect, logger.ComponentLogger("candidate")),
		history:    history.NewStore(conn, dialect),
	}, nil
}

func (s *stores) Close() {
	if err := s.conn.Close(); err != nil {
		logger.Logger.Warnw("Failed to close database", logger.FieldError, err)
	}
}

func newFetcher(cfg *am.Config) *fetch.Fetcher {
	log := logger.ComponentLogger("fetch")
	client := httpclient.New(httpclient.Options{
		Timeout:        cfg.FetchTimeout(),
		BlockPrivateIP: !cfg.Source.AllowPrivateHosts,
		UserAgent:      cfg.Source.UserAgent,
		Logger:         log,
	})
	return fetch.New(client, fetch.Config{
		BaseURL:         cfg.Source.BaseURL,
		UserAgent:       cfg.Source.UserAgent,
		DownloadDir:     cfg.Run.DownloadDir,
		Timeout:         cfg.FetchTimeout(),
		MinPayloadBytes: cfg.Source.MinPayloadBytes,
		MaxPayloadBytes: cfg.Source.MaxPayloadBytes,
	},
		fetch.WithLimiter(budget.NewLimiter(cfg.Source.MaxRequestsPerMinute)),
		fetch.WithLogger(log),
	)
}

func newUploader(cfg *am.Config) *ingest.Uploader {
	log := logger.ComponentLogger("ingest")
	client := httpclient.New(httpclient.Options{
		Timeout:   cfg.UploadTimeout(),
		UserAgent: version.Get().UserAgentSuffix(),
		Logger:    log,
	})
	return ingest.New(client, ingest.Config{
		BaseURL: cfg.Ingest.BaseURL,
		Token:   cfg.Ingest.Token,
		Timeout: cfg.UploadTimeout(),
	}, log)
}

// newEmitter streams JSON events to stderr when --json is set, keeping stdout
// for the final result; otherwise it prints pterm progress.
func newEmitter(cmd *cobra.Command) pulse.ProgressEmitter {
	if display.ShouldOutputJSON(cmd) {
		return pulse.NewJSONEmitterTo(cmd.ErrOrStderr())
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")
	return pulse.NewCLIEmitter(verbosity)
}

func commandLogger(cmd *cobra.Command) *zap.SugaredLogger {
	return logger.ComponentLogger(cmd.Name())
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
