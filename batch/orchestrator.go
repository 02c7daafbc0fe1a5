// Package batch drives a sync run: select candidates, fetch each export,
// upload it, and account for every symbol.
//
// Processing is strictly sequential. The fixed delays between items and
// between chunks keep the request cadence below the provider's automation
// defenses and are not to be tuned away for throughput.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/fetch"
	"github.com/teranos/exportsync/ingest"
	"github.com/teranos/exportsync/logger"
	"github.com/teranos/exportsync/pulse"
)

// Selector returns the candidates of a run.
type Selector interface {
	SelectCandidates(ctx context.Context, f candidate.Filter) ([]candidate.Symbol, error)
}

// Fetcher downloads one symbol's export.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (*fetch.Artifact, error)
}

// Uploader sends one artifact to the ingestion endpoint.
type Uploader interface {
	Upload(ctx context.Context, symbol, path string) ingest.Outcome
}

// Recorder persists run history. Failures are logged, never fatal.
type Recorder interface {
	Begin(ctx context.Context, kind, mode string, startedAt time.Time) (string, error)
	Finish(ctx context.Context, id string, finishedAt time.Time, stats Stats, abortReason string) error
}

// Run kinds stored by a Recorder.
const (
	KindSync  = "sync"
	KindSweep = "sweep"
)

// Options tunes a run.
type Options struct {
	Classification     string
	BatchSize          int
	ItemDelay          time.Duration
	BatchDelay         time.Duration
	MaxRetries         int             // upload retries after the first attempt
	RetryBackoff       []time.Duration // delay before retry n; the last entry repeats
	ProgressEvery      int
	FailedFile         string // empty disables the failure file
	AbortOnAuthFailure bool
	Limit              int  // process at most Limit candidates; 0 = all
	DryRun             bool // select and plan only
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Classification:     candidate.DefaultClassification,
		BatchSize:          DefaultBatchSize,
		ItemDelay:          3 * time.Second,
		BatchDelay:         30 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       []time.Duration{5 * time.Second},
		ProgressEvery:      10,
		FailedFile:         "failed-stocks.txt",
		AbortOnAuthFailure: true,
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (o Options) Backoff(attempt int) time.Duration {
	if len(o.RetryBackoff) == 0 || attempt <= 0 {
		return 0
	}
	if attempt > len(o.RetryBackoff) {
		return o.RetryBackoff[len(o.RetryBackoff)-1]
	}
	return o.RetryBackoff[attempt-1]
}

// Orchestrator runs the fetch/upload pipeline over a candidate list.
type Orchestrator struct {
	store    Selector
	fetcher  Fetcher
	uploader Uploader
	opts     Options

	clock    pulse.Clock
	emitter  pulse.ProgressEmitter
	recorder Recorder
	logger   *zap.SugaredLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for delays.
func WithClock(c pulse.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithEmitter sets the progress emitter.
func WithEmitter(e pulse.ProgressEmitter) Option { return func(o *Orchestrator) { o.emitter = e } }

// WithRecorder enables run history.
func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(o *Orchestrator) { o.logger = l } }

// New creates an Orchestrator.
func New(store Selector, fetcher Fetcher, uploader Uploader, opts Options, options ...Option) *Orchestrator {
	if opts.Classification == "" {
		opts.Classification = candidate.DefaultClassification
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	o := &Orchestrator{
		store:    store,
		fetcher:  fetcher,
		uploader: uploader,
		opts:     opts,
		clock:    pulse.RealClock{},
		emitter:  pulse.NopEmitter{},
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Run processes every candidate of src. It returns the run's statistics even
// when it stops early: on a store failure (errors.ErrStoreUnavailable), on an
// auth failure with AbortOnAuthFailure, or when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, src candidate.Source) (Stats, error) {
	log := o.logger.With(logger.FieldMode, src.String())

	filter, err := src.Filter(o.opts.Classification)
	if err != nil {
		return Stats{}, err
	}

	o.emitter.EmitStage(logger.StageSelect, fmt.Sprintf("Selecting %s candidates (%s)", o.opts.Classification, src))
	symbols, err := o.store.SelectCandidates(ctx, filter)
	if err != nil {
		log.Errorw("Candidate selection failed", logger.FieldStage, logger.StageSelect, logger.FieldError, err)
		o.emitter.EmitError(logger.StageSelect, err)
		return Stats{}, err
	}
	if o.opts.Limit > 0 && len(symbols) > o.opts.Limit {
		log.Infow("Limiting run", logger.FieldCount, o.opts.Limit, logger.FieldTotal, len(symbols))
		symbols = symbols[:o.opts.Limit]
	}

	plan := NewPlan(symbols, o.opts.BatchSize)
	stats := NewStats(len(symbols))

	if o.opts.DryRun {
		log.Infow("Dry run: nothing fetched or uploaded",
			logger.FieldTotal, stats.Total,
			logger.FieldBatchSize, plan.Size,
			logger.FieldBatch, plan.Len(),
		)
		o.emitter.EmitComplete(stats.Summary())
		return stats, nil
	}

	runID := o.begin(ctx, KindSync, src.String())
	if runID != "" {
		ctx = logger.WithRunID(ctx, runID)
		log = logger.FromContext(ctx, log)
	}

	if stats.Total == 0 {
		log.Infow("No candidates to process; every selected symbol may already have a document")
		o.finish(ctx, runID, stats, nil, log)
		return stats, nil
	}

	log.Infow("Starting sync run",
		logger.FieldTotal, stats.Total,
		logger.FieldBatchSize, plan.Size,
		"item_delay", o.opts.ItemDelay,
		"batch_delay", o.opts.BatchDelay,
		"max_retries", o.opts.MaxRetries,
	)

	stats, runErr := o.runPlan(ctx, plan, stats, log)
	o.finish(ctx, runID, stats, runErr, log)
	return stats, runErr
}

func (o *Orchestrator) runPlan(ctx context.Context, plan Plan, stats Stats, log *zap.SugaredLogger) (Stats, error) {
	for bi, chunk := range plan.Chunks {
		batchNo := bi + 1
		o.emitter.EmitStage("batch", fmt.Sprintf("Batch %d/%d (%d symbols)", batchNo, plan.Len(), len(chunk)))
		log.Infow("Batch started", logger.FieldBatch, batchNo, logger.FieldCount, len(chunk))

		for i, sym := range chunk {
			if err := ctx.Err(); err != nil {
				return stats, interrupted(err)
			}

			terminal, err := o.processSymbol(ctx, sym.Symbol, stats, log)
			if terminal != "" {
				stats = stats.Record(terminal, sym.Symbol)
				if o.opts.ProgressEvery > 0 && stats.Processed%o.opts.ProgressEvery == 0 {
					o.progress(stats, log)
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return stats, interrupted(ctx.Err())
				}
				return stats, err
			}

			if i < len(chunk)-1 {
				if err := o.clock.Sleep(ctx, o.opts.ItemDelay); err != nil {
					return stats, interrupted(err)
				}
			}
		}

		o.progress(stats, log)

		if batchNo < plan.Len() {
			log.Infow("Pausing between batches", logger.FieldDelayMS, o.opts.BatchDelay.Milliseconds())
			if err := o.clock.Sleep(ctx, o.opts.BatchDelay); err != nil {
				return stats, interrupted(err)
			}
		}
	}
	return stats, nil
}

// processSymbol drives one symbol through fetch and upload. An empty Terminal
// means the symbol was not processed (cancelled before it finished fetching).
// A non-nil error stops the run.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string, stats Stats, log *zap.SugaredLogger) (Terminal, error) {
	log = log.With(logger.FieldSymbol, symbol)
	log.Infow(fmt.Sprintf("Processing %s (%d/%d)", symbol, stats.Processed+1, stats.Total))

	artifact, err := o.fetcher.Fetch(ctx, symbol)
	if err != nil {
		failure, _ := fetch.AsFailure(err)
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.IsExpectedOutcome(err):
			log.Infow("Skipping: no document upstream",
				logger.FieldStage, logger.StageFetch,
				logger.FieldErrorKind, fetchKind(failure),
				logger.FieldHTTPStatus, statusCode(failure),
			)
			return TerminalSkipped, nil
		default:
			log.Warnw("Fetch failed",
				logger.FieldStage, logger.StageFetch,
				logger.FieldErrorKind, fetchKind(failure),
				logger.FieldError, err,
			)
			o.emitter.EmitError(logger.StageFetch, err)
			return TerminalFailed, nil
		}
	}

	return uploadWithRetry(ctx, o.uploader, o.clock, o.opts, symbol, artifact.LocalPath, log, o.emitter)
}

// uploadWithRetry runs the bounded retry loop for one artifact. Only retryable
// outcomes are retried, at most opts.MaxRetries times.
func uploadWithRetry(ctx context.Context, up Uploader, clock pulse.Clock, opts Options, symbol, path string,
	log *zap.SugaredLogger, emitter pulse.ProgressEmitter) (Terminal, error) {
	for attempt := 0; ; attempt++ {
		out := up.Upload(ctx, symbol, path)
		if out.OK() {
			log.Infow("Uploaded", logger.FieldStage, logger.StageUpload, logger.FieldAttempt, attempt+1)
			return TerminalUploaded, nil
		}

		fields := []interface{}{
			logger.FieldStage, logger.StageUpload,
			logger.FieldAttempt, attempt + 1,
			logger.FieldStatus, string(out.Status),
			logger.FieldHTTPStatus, out.HTTPStatus,
			logger.FieldError, out.Message,
		}

		if out.Status == ingest.StatusAuthFailure {
			log.Errorw("Upload rejected: bad or expired token", fields...)
			err := out.Err()
			emitter.EmitError(logger.StageUpload, err)
			if opts.AbortOnAuthFailure {
				return TerminalFailed, errors.WithHint(
					errors.Wrap(err, "aborting run"),
					"refresh the admin token (ingest.token, EXPORTSYNC_INGEST_TOKEN or ADMIN_TOKEN) and re-run",
				)
			}
			return TerminalFailed, nil
		}

		if !out.Retryable || attempt >= opts.MaxRetries {
			log.Warnw(fmt.Sprintf("Upload failed after %d attempt(s)", attempt+1), fields...)
			emitter.EmitError(logger.StageUpload, out.Err())
			return TerminalFailed, nil
		}

		delay := opts.Backoff(attempt + 1)
		log.Infow(fmt.Sprintf("Retrying %s (retry %d/%d)", symbol, attempt+1, opts.MaxRetries),
			append(fields, logger.FieldDelayMS, delay.Milliseconds())...)
		if err := clock.Sleep(ctx, delay); err != nil {
			// the artifact stays on disk and the symbol is listed for follow-up
			return TerminalFailed, err
		}
	}
}

func (o *Orchestrator) progress(stats Stats, log *zap.SugaredLogger) {
	log.Infow(fmt.Sprintf("Progress: %d/%d (%.1f%%)", stats.Processed, stats.Total, stats.Percent()),
		logger.FieldProcessed, stats.Processed,
		logger.FieldTotal, stats.Total,
		logger.FieldSuccess, stats.Success,
		logger.FieldFailed, stats.Failed,
		logger.FieldSkipped, stats.Skipped,
	)
	o.emitter.EmitProgress(stats.Processed, stats.Fields())
}

func (o *Orchestrator) begin(ctx context.Context, kind, mode string) string {
	return beginRecord(ctx, o.recorder, o.clock, kind, mode, o.logger)
}

func (o *Orchestrator) finish(ctx context.Context, runID string, stats Stats, runErr error, log *zap.SugaredLogger) {
	finishRun(ctx, o.recorder, o.clock, runID, stats, runErr, o.opts.FailedFile, log, o.emitter)
}

func beginRecord(ctx context.Context, rec Recorder, clock pulse.Clock, kind, mode string, log *zap.SugaredLogger) string {
	if rec == nil {
		return ""
	}
	id, err := rec.Begin(ctx, kind, mode, clock.Now())
	if err != nil {
		log.Warnw("Could not record run start", logger.FieldError, err)
		return ""
	}
	return id
}

// finishRun writes the failure file, logs the summary and closes the history record.
func finishRun(ctx context.Context, rec Recorder, clock pulse.Clock, runID string, stats Stats, runErr error,
	failedFile string, log *zap.SugaredLogger, emitter pulse.ProgressEmitter) {
	if err := WriteFailureFile(failedFile, stats.Errors); err != nil {
		log.Errorw("Could not write failure file", logger.FieldFile, failedFile, logger.FieldError, err)
		emitter.EmitError("summary", err)
	} else if len(stats.Errors) > 0 && failedFile != "" {
		log.Infow("Failed items saved", logger.FieldFile, failedFile, logger.FieldFailed, len(stats.Errors))
	}

	summary := []interface{}{
		logger.FieldTotal, stats.Total,
		logger.FieldProcessed, stats.Processed,
		logger.FieldSuccess, stats.Success,
		logger.FieldFailed, stats.Failed,
		logger.FieldSkipped, stats.Skipped,
		logger.FieldNotFound, stats.NotFound,
		"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
	}
	if runErr != nil {
		log.Warnw("Run stopped early", append(summary, logger.FieldError, runErr)...)
	} else {
		log.Infow("Run complete", summary...)
	}
	emitter.EmitComplete(stats.Summary())

	if rec == nil || runID == "" {
		return
	}
	reason := ""
	if runErr != nil {
		reason = runErr.Error()
	}
	// the run context may already be cancelled; the record must still be closed
	if err := rec.Finish(context.WithoutCancel(ctx), runID, clock.Now(), stats, reason); err != nil {
		// main may already have closed the handle after an interrupt
		if db.IsDatabaseClosed(err) {
			log.Debugw("Run end not recorded; database already closed", logger.FieldError, err)
			return
		}
		log.Warnw("Could not record run end", logger.FieldError, err)
	}
}

func interrupted(err error) error {
	return errors.Wrap(err, "run interrupted")
}

func statusCode(f *fetch.Failure) int {
	if f == nil {
		return 0
	}
	return f.StatusCode
}

func fetchKind(f *fetch.Failure) string {
	if f == nil {
		return "unknown"
	}
	return string(f.Kind)
}
