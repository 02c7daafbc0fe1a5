// Package sweep reconciles hand-downloaded exports in a drop folder.
//
// File names in the drop folder are usually company display names; sync
// leftovers are named by ticker. Each is resolved against the active
// candidates; matches are uploaded directly and
// everything else is moved into a quarantine subfolder for an operator to look
// at. Nothing is deleted unless the ingestion endpoint confirmed it.
package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/batch"
	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/fetch"
	"github.com/teranos/exportsync/ingest"
	"github.com/teranos/exportsync/logger"
	"github.com/teranos/exportsync/pulse"
	"github.com/teranos/exportsync/resolve"
)

// DefaultQuarantineDir is the subfolder unmatched files are moved into.
const DefaultQuarantineDir = "not-found"

// Lister returns the active candidates a file name may resolve to.
type Lister interface {
	ListActive(ctx context.Context, classification string) ([]candidate.Symbol, error)
}

// Config configures a Sweeper.
type Config struct {
	Dir                string
	QuarantineDir      string // relative to Dir unless absolute
	Classification     string
	ItemDelay          time.Duration
	ProgressEvery      int
	AbortOnAuthFailure bool
}

// Sweeper runs one reconciliation pass over the drop folder.
type Sweeper struct {
	store    Lister
	uploader batch.Uploader
	cfg      Config

	clock    pulse.Clock
	emitter  pulse.ProgressEmitter
	recorder batch.Recorder
	logger   *zap.SugaredLogger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the clock used for the inter-file delay.
func WithClock(c pulse.Clock) Option { return func(s *Sweeper) { s.clock = c } }

// WithEmitter sets the progress emitter.
func WithEmitter(e pulse.ProgressEmitter) Option { return func(s *Sweeper) { s.emitter = e } }

// WithRecorder enables run history.
func WithRecorder(r batch.Recorder) Option { return func(s *Sweeper) { s.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Sweeper) { s.logger = l } }

// New creates a Sweeper.
func New(store Lister, uploader batch.Uploader, cfg Config, opts ...Option) *Sweeper {
	if cfg.QuarantineDir == "" {
		cfg.QuarantineDir = DefaultQuarantineDir
	}
	if cfg.Classification == "" {
		cfg.Classification = candidate.DefaultClassification
	}
	s := &Sweeper{
		store:    store,
		uploader: uploader,
		cfg:      cfg,
		clock:    pulse.RealClock{},
		emitter:  pulse.NopEmitter{},
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuarantinePath returns the absolute-or-relative quarantine folder.
func (s *Sweeper) QuarantinePath() string {
	if filepath.IsAbs(s.cfg.QuarantineDir) {
		return s.cfg.QuarantineDir
	}
	return filepath.Join(s.cfg.Dir, s.cfg.QuarantineDir)
}

// Pending lists the artifacts a sweep would process, sorted by name.
// Subfolders and in-progress .part downloads are ignored.
func Pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read drop folder %s", dir), errors.ErrFileSystem)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fetch.ArtifactExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every pending artifact once. Uploads are single attempts;
// a failed file stays where it is for the next sweep.
func (s *Sweeper) Run(ctx context.Context) (batch.Stats, error) {
	log := s.logger.With(logger.FieldPath, s.cfg.Dir)

	files, err := Pending(s.cfg.Dir)
	if err != nil {
		return batch.Stats{}, err
	}
	stats := batch.NewStats(len(files))
	if len(files) == 0 {
		log.Infow("Drop folder is empty")
		s.emitter.EmitComplete(stats.Summary())
		return stats, nil
	}

	s.emitter.EmitStage(logger.StageResolve, fmt.Sprintf("Loading %s candidates", s.cfg.Classification))
	active, err := s.store.ListActive(ctx, s.cfg.Classification)
	if err != nil {
		log.Errorw("Candidate snapshot failed", logger.FieldStage, logger.StageSelect, logger.FieldError, err)
		return batch.Stats{}, err
	}
	idx := resolve.NewIndex(active)

	runID := s.begin(ctx)
	if runID != "" {
		ctx = logger.WithRunID(ctx, runID)
		log = logger.FromContext(ctx, log)
	}
	log.Infow("Starting sweep", logger.FieldTotal, len(files), logger.FieldCount, idx.Len())

	var runErr error
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, "sweep interrupted")
			break
		}

		var fatal error
		stats, fatal = s.processFile(ctx, idx, path, stats, log)
		if s.cfg.ProgressEvery > 0 && stats.Processed%s.cfg.ProgressEvery == 0 {
			s.progress(stats, log)
		}
		if fatal != nil {
			runErr = fatal
			break
		}

		if i < len(files)-1 {
			if err := s.clock.Sleep(ctx, s.cfg.ItemDelay); err != nil {
				runErr = errors.Wrap(err, "sweep interrupted")
				break
			}
		}
	}

	s.finish(ctx, runID, stats, runErr, log)
	return stats, runErr
}

func (s *Sweeper) processFile(ctx context.Context, idx *resolve.Index, path string, stats batch.Stats,
	log *zap.SugaredLogger) (batch.Stats, error) {
	file := filepath.Base(path)
	log = log.With(logger.FieldFile, file)

	result := idx.Resolve(resolve.NameFromFile(path))
	if !result.Resolved() {
		fields := []interface{}{logger.FieldStage, logger.StageResolve}
		if result.Ambiguous() {
			fields = append(fields, "candidates", result.Candidates)
		}
		log.Infow("No unique symbol for file; quarantining", fields...)

		dest, err := s.quarantine(path)
		if err != nil {
			log.Errorw("Quarantine failed", logger.FieldStage, logger.StageQuarantine, logger.FieldError, err)
			s.emitter.EmitError(logger.StageQuarantine, err)
			return stats.Record(batch.TerminalFailed, file), nil
		}
		log.Debugw("Quarantined", logger.FieldPath, dest)
		return stats.Record(batch.TerminalNotFound, file), nil
	}

	symbol := result.Symbol
	log = log.With(logger.FieldSymbol, symbol, logger.FieldStrategy, string(result.Strategy))
	label := fmt.Sprintf("%s (%s)", file, symbol)

	out := s.uploader.Upload(ctx, symbol, path)
	if out.OK() {
		log.Infow("Uploaded", logger.FieldStage, logger.StageUpload)
		return stats.Record(batch.TerminalUploaded, label), nil
	}

	log.Warnw("Upload failed",
		logger.FieldStage, logger.StageUpload,
		logger.FieldStatus, string(out.Status),
		logger.FieldHTTPStatus, out.HTTPStatus,
		logger.FieldError, out.Message,
	)
	s.emitter.EmitError(logger.StageUpload, out.Err())
	stats = stats.Record(batch.TerminalFailed, label)

	if out.Status == ingest.StatusAuthFailure && s.cfg.AbortOnAuthFailure {
		return stats, errors.WithHint(
			errors.Wrap(out.Err(), "aborting sweep"),
			"refresh the admin token (ingest.token, EXPORTSYNC_INGEST_TOKEN or ADMIN_TOKEN) and re-run",
		)
	}
	return stats, nil
}

// quarantine moves path into the quarantine folder without overwriting
// an earlier file of the same name.
func (s *Sweeper) quarantine(path string) (string, error) {
	dir := s.QuarantinePath()
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return "", errors.Mark(errors.Wrap(err, "create quarantine folder"), errors.ErrFileSystem)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dest := filepath.Join(dir, base)
	for n := 1; ; n++ {
		if _, err := os.Lstat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(dir, stem+" ("+strconv.Itoa(n)+")"+ext)
	}

	if err := os.Rename(path, dest); err != nil {
		return "", errors.Mark(errors.Wrap(err, "move to quarantine"), errors.ErrFileSystem)
	}
	return dest, nil
}

func (s *Sweeper) progress(stats batch.Stats, log *zap.SugaredLogger) {
	log.Infow(fmt.Sprintf("Progress: %d/%d files", stats.Processed, stats.Total),
		logger.FieldSuccess, stats.Success,
		logger.FieldFailed, stats.Failed,
		logger.FieldNotFound, stats.NotFound,
	)
	s.emitter.EmitProgress(stats.Processed, stats.Fields())
}

func (s *Sweeper) begin(ctx context.Context) string {
	if s.recorder == nil {
		return ""
	}
	id, err := s.recorder.Begin(ctx, batch.KindSweep, "", s.clock.Now())
	if err != nil {
		s.logger.Warnw("Could not record sweep start", logger.FieldError, err)
		return ""
	}
	return id
}

func (s *Sweeper) finish(ctx context.Context, runID string, stats batch.Stats, runErr error, log *zap.SugaredLogger) {
	summary := []interface{}{
		logger.FieldTotal, stats.Total,
		logger.FieldSuccess, stats.Success,
		logger.FieldFailed, stats.Failed,
		logger.FieldNotFound, stats.NotFound,
	}
	if runErr != nil {
		log.Warnw("Sweep stopped early", append(summary, logger.FieldError, runErr)...)
	} else {
		log.Infow("Sweep complete", summary...)
	}
	if len(stats.Errors) > 0 {
		log.Infow("Failed files: "+strings.Join(stats.Errors, ", "))
	}
	s.emitter.EmitComplete(stats.Summary())

	if s.recorder == nil || runID == "" {
		return
	}
	reason := ""
	if runErr != nil {
		reason = runErr.Error()
	}
	if err := s.recorder.Finish(context.WithoutCancel(ctx), runID, s.clock.Now(), stats, reason); err != nil {
		if db.IsDatabaseClosed(err) {
			log.Debugw("Sweep end not recorded; database already closed", logger.FieldError, err)
			return
		}
		log.Warnw("Could not record sweep end", logger.FieldError, err)
	}
}
