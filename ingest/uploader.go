// Package ingest uploads export artifacts to the admin ingestion endpoint.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/internal/httpclient"
	"github.com/teranos/exportsync/logger"
)

// Status is the classified result of an upload.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusAuthFailure       Status = "auth_failure"
	StatusServerFailure     Status = "server_failure"
	StatusMalformedResponse Status = "malformed_response"
	StatusFileError         Status = "file_error"
)

// maxResponseBytes caps how much of the endpoint's answer is read.
const maxResponseBytes = 1 << 20

// Outcome describes one upload attempt.
type Outcome struct {
	Symbol     string `json:"symbol"`
	Status     Status `json:"status"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Message    string `json:"message,omitempty"`
	Retryable  bool   `json:"retryable"`
}

// OK reports whether the endpoint confirmed the document.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Err converts a failed outcome into an error carrying the taxonomy sentinel.
// Nil for success.
func (o Outcome) Err() error {
	var sentinel error
	switch o.Status {
	case StatusSuccess:
		return nil
	case StatusAuthFailure:
		sentinel = errors.ErrAuthFailure
	case StatusMalformedResponse:
		sentinel = errors.ErrMalformedResponse
	case StatusFileError:
		sentinel = errors.ErrFileSystem
	default:
		sentinel = errors.ErrServerError
	}
	msg := "upload " + o.Symbol
	if o.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", o.HTTPStatus)
	}
	if o.Message != "" {
		msg += ": " + o.Message
	}
	return errors.Wrap(sentinel, msg)
}

// Config configures an Uploader.
type Config struct {
	BaseURL string // e.g. http://localhost:3000/api/admin/stock-details
	Token   string
	Timeout time.Duration // per request; 0 = none
}

// Uploader posts artifacts to {BaseURL}/{symbol}/upload.
type Uploader struct {
	client httpclient.Doer
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates an Uploader. A nil logger disables logging.
func New(client httpclient.Doer, cfg Config, log *zap.SugaredLogger) *Uploader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Uploader{client: client, cfg: cfg, logger: log}
}

// UploadURL returns the endpoint for symbol.
func (u *Uploader) UploadURL(symbol string) string {
	return u.cfg.BaseURL + "/" + url.PathEscape(symbol) + "/upload"
}

type response struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Upload sends the artifact at path for symbol. The artifact is deleted if and
// only if the returned status is StatusSuccess.
func (u *Uploader) Upload(ctx context.Context, symbol, path string) Outcome {
	out := Outcome{Symbol: symbol}

	body, contentType, err := buildForm(symbol, path)
	if err != nil {
		out.Status = StatusFileError
		out.Message = err.Error()
		return out
	}

	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL(symbol), body)
	if err != nil {
		out.Status = StatusServerFailure
		out.Message = err.Error()
		return out
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+u.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		out.Status = StatusServerFailure
		out.Message = err.Error()
		out.Retryable = true
		return out
	}
	defer resp.Body.Close()
	out.HTTPStatus = resp.StatusCode

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	classify(&out, resp.StatusCode, raw, readErr)

	if out.OK() {
		if err := os.Remove(path); err != nil {
			u.logger.Warnw("Uploaded but could not delete artifact",
				logger.FieldSymbol, symbol,
				logger.FieldPath, path,
				logger.FieldError, err,
			)
			out.Message = fmt.Sprintf("uploaded; artifact not deleted: %v", err)
		}
	}
	return out
}

// classify fills status, message and retryability from the endpoint's answer.
func classify(out *Outcome, code int, raw []byte, readErr error) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		out.Status = StatusAuthFailure
		out.Message = messageFrom(raw, http.StatusText(code))
		return
	case code >= 500 || code == http.StatusTooManyRequests:
		out.Status = StatusServerFailure
		out.Message = messageFrom(raw, http.StatusText(code))
		out.Retryable = true
		return
	}

	if readErr != nil {
		out.Status = StatusServerFailure
		out.Message = readErr.Error()
		out.Retryable = true
		return
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil || r.Success == nil {
		out.Status = StatusMalformedResponse
		out.Message = fmt.Sprintf("unexpected response: %s", snippet(raw))
		return
	}

	is2xx := code >= 200 && code <= 299
	switch {
	case *r.Success && is2xx:
		out.Status = StatusSuccess
		out.Message = r.Message
	case !*r.Success:
		out.Status = StatusServerFailure
		out.Message = firstNonEmpty(r.Error, r.Message, "endpoint reported failure")
		// a 2xx with success=false is a processing failure on the endpoint's side
		out.Retryable = is2xx
	default:
		out.Status = StatusServerFailure
		out.Message = fmt.Sprintf("success with HTTP %d", code)
	}
}

func buildForm(symbol, path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "open artifact")
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", errors.Wrap(err, "create multipart file field")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", errors.Wrap(err, "read artifact")
	}
	if err := writer.WriteField("symbol", symbol); err != nil {
		return nil, "", errors.Wrap(err, "write symbol field")
	}
	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return body, writer.FormDataContentType(), nil
}

func messageFrom(raw []byte, fallback string) string {
	var r response
	if json.Unmarshal(raw, &r) == nil {
		if msg := firstNonEmpty(r.Error, r.Message); msg != "" {
			return msg
		}
	}
	if s := snippet(raw); s != "" {
		return s
	}
	return fallback
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
