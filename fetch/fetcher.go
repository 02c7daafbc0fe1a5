// Package fetch downloads per-symbol export documents from the upstream provider.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/internal/httpclient"
	"github.com/teranos/exportsync/logger"
	"github.com/teranos/exportsync/pulse"
	"github.com/teranos/exportsync/pulse/budget"
)

// ArtifactExt is the extension of downloaded exports.
const ArtifactExt = ".xlsx"

// partExt marks a download in progress; sweeps ignore it.
const partExt = ".part"

const acceptHeader = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,*/*"

// Artifact is a downloaded export on local disk. The uploader owns it from here
// on and deletes it once the ingestion endpoint confirms it.
type Artifact struct {
	Symbol    string    `json:"symbol"`
	LocalPath string    `json:"local_path"`
	ByteSize  int64     `json:"byte_size"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Config configures a Fetcher.
type Config struct {
	BaseURL         string // e.g. https://www.screener.in/company
	UserAgent       string
	DownloadDir     string
	Timeout         time.Duration // per request; 0 = none
	MinPayloadBytes int64         // bodies of this size or smaller are rejected
	MaxPayloadBytes int64         // 0 = unlimited
}

// Fetcher downloads one export per call. It never retries.
type Fetcher struct {
	client  httpclient.Doer
	cfg     Config
	limiter *budget.Limiter
	clock   pulse.Clock
	logger  *zap.SugaredLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLimiter paces requests through l.
func WithLimiter(l *budget.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithClock sets the clock used for FetchedAt.
func WithClock(c pulse.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(client httpclient.Doer, cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		clock:  pulse.RealClock{},
		logger: zap.NewNop().Sugar(),
	}
	f.cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExportURL returns the download URL for symbol.
func (f *Fetcher) ExportURL(symbol string) string {
	return f.cfg.BaseURL + "/" + url.PathEscape(symbol) + "/export/"
}

func (f *Fetcher) refererURL(symbol string) string {
	return f.cfg.BaseURL + "/" + url.PathEscape(symbol) + "/"
}

// ArtifactPath returns where symbol's export is written.
func (f *Fetcher) ArtifactPath(symbol string) string {
	return filepath.Join(f.cfg.DownloadDir, symbol+ArtifactExt)
}

// Fetch downloads symbol's export. Failures are *Failure.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (*Artifact, error) {
	symbol = candidate.Normalize(symbol)
	if symbol == "" {
		return nil, errors.New("fetch: empty symbol")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if max, next := f.limiter.Stats(); next > 0 {
		f.logger.Debugw("Waiting for request slot",
			logger.FieldSymbol, symbol,
			logger.FieldDelayMS, next.Milliseconds(),
			"max_per_minute", max)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, newFailure(KindNetwork, symbol, 0, errors.Wrap(err, "waiting for request slot"))
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	sourceURL := f.ExportURL(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, newFailure(KindNetwork, symbol, 0, errors.Wrap(err, "build request"))
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Referer", f.refererURL(symbol))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFailure(KindNetwork, symbol, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, newFailure(KindNotFound, symbol, resp.StatusCode, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newFailure(KindServer, symbol, resp.StatusCode, nil)
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		return nil, newFailure(KindInvalidPayload, symbol, resp.StatusCode,
			errors.Newf("content type %q is a page, not an export", resp.Header.Get("Content-Type")))
	}

	artifact, err := f.writeArtifact(symbol, sourceURL, resp)
	if err != nil {
		return nil, err
	}

	f.logger.Infow("Downloaded export",
		logger.FieldSymbol, symbol,
		logger.FieldSize, artifact.ByteSize,
		logger.FieldPath, artifact.LocalPath,
	)
	return artifact, nil
}

// writeArtifact streams the body into a .part file, validates its size and
// renames it into place.
func (f *Fetcher) writeArtifact(symbol, sourceURL string, resp *http.Response) (*Artifact, error) {
	if err := os.MkdirAll(f.cfg.DownloadDir, 0755); err != nil {
		return nil, newFailure(KindFileSystem, symbol, resp.StatusCode, errors.Wrap(err, "create download dir"))
	}

	final := f.ArtifactPath(symbol)
	part := final + partExt
	out, err := os.Create(part)
	if err != nil {
		return nil, newFailure(KindFileSystem, symbol, resp.StatusCode, errors.Wrap(err, "create artifact"))
	}
	cleanup := func() {
		out.Close()
		os.Remove(part)
	}

	body := io.Reader(resp.Body)
	if f.cfg.MaxPayloadBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxPayloadBytes+1)
	}

	n, err := io.Copy(out, body)
	if err != nil {
		cleanup()
		// the response died mid-body: a transport problem, not a disk one
		return nil, newFailure(KindNetwork, symbol, resp.StatusCode, errors.Wrap(err, "read body"))
	}
	if f.cfg.MaxPayloadBytes > 0 && n > f.cfg.MaxPayloadBytes {
		cleanup()
		return nil, newFailure(KindInvalidPayload, symbol, resp.StatusCode,
			errors.Newf("body exceeds %d bytes", f.cfg.MaxPayloadBytes))
	}
	if n <= f.cfg.MinPayloadBytes {
		cleanup()
		return nil, newFailure(KindInvalidPayload, symbol, resp.StatusCode,
			errors.Newf("body is %d bytes, need more than %d", n, f.cfg.MinPayloadBytes))
	}

	if err := out.Close(); err != nil {
		os.Remove(part)
		return nil, newFailure(KindFileSystem, symbol, resp.StatusCode, errors.Wrap(err, "close artifact"))
	}
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return nil, newFailure(KindFileSystem, symbol, resp.StatusCode, errors.Wrap(err, "finalize artifact"))
	}

	return &Artifact{
		Symbol:    symbol,
		LocalPath: final,
		ByteSize:  n,
		SourceURL: sourceURL,
		FetchedAt: f.clock.Now(),
	}, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

// String is used in logs.
func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%d bytes)", a.LocalPath, a.ByteSize)
}
