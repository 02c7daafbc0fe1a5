package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/internal/httpclient"
)

func writeArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 export bytes"), 0644))
	return path
}

func newTestUploader(t *testing.T, baseURL string) *Uploader {
	t.Helper()
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second})
	return New(client, Config{BaseURL: baseURL + "/api/admin/stock-details/", Token: "s3cret", Timeout: 2 * time.Second},
		zaptest.NewLogger(t).Sugar())
}

func TestUploadSuccess(t *testing.T) {
	var (
		gotPath, gotAuth, gotSymbol, gotFileName string
		gotFile                                  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotSymbol = r.FormValue("symbol")
		f, header, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotFileName = header.Filename
		gotFile, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"stored"}`))
	}))
	defer srv.Close()

	path := writeArtifact(t, "INFY.xlsx")
	u := newTestUploader(t, srv.URL)

	out := u.Upload(context.Background(), "INFY", path)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.OK())
	assert.NoError(t, out.Err())
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, "stored", out.Message)
	assert.False(t, out.Retryable)

	assert.Equal(t, "/api/admin/stock-details/INFY/upload", gotPath)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "INFY", gotSymbol)
	assert.Equal(t, "INFY.xlsx", gotFileName)
	assert.Equal(t, "PK\x03\x04 export bytes", string(gotFile))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "artifact must be deleted after a confirmed upload")
}

func TestUploadClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      Status
		retryable bool
		message   string
		sentinel  error
	}{
		{"unauthorized", 401, `{"success":false,"error":"invalid token"}`, StatusAuthFailure, false, "invalid token", errors.ErrAuthFailure},
		{"forbidden html", 403, `<html>nope</html>`, StatusAuthFailure, false, "<html>nope</html>", errors.ErrAuthFailure},
		{"internal error", 500, `{"success":false,"error":"db down"}`, StatusServerFailure, true, "db down", errors.ErrServerError},
		{"bad gateway empty", 502, ``, StatusServerFailure, true, "Bad Gateway", errors.ErrServerError},
		{"throttled", 429, `slow down`, StatusServerFailure, true, "slow down", errors.ErrServerError},
		{"processing failure", 200, `{"success":false,"error":"sheet missing"}`, StatusServerFailure, true, "sheet missing", errors.ErrServerError},
		{"rejected", 400, `{"success":false,"error":"unknown symbol"}`, StatusServerFailure, false, "unknown symbol", errors.ErrServerError},
		{"not json", 200, `<html>ok</html>`, StatusMalformedResponse, false, "unexpected response: <html>ok</html>", errors.ErrMalformedResponse},
		{"missing success", 200, `{"ok":true}`, StatusMalformedResponse, false, `unexpected response: {"ok":true}`, errors.ErrMalformedResponse},
		{"success is not boolean", 200, `{"success":"yes"}`, StatusMalformedResponse, false, `unexpected response: {"success":"yes"}`, errors.ErrMalformedResponse},
		{"success on a 4xx", 404, `{"success":true}`, StatusServerFailure, false, "success with HTTP 404", errors.ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			path := writeArtifact(t, "ACME.xlsx")
			out := newTestUploader(t, srv.URL).Upload(context.Background(), "ACME", path)

			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.retryable, out.Retryable)
			assert.Equal(t, tt.status, out.HTTPStatus)
			assert.Equal(t, tt.message, out.Message)
			assert.True(t, errors.Is(out.Err(), tt.sentinel))

			_, err := os.Stat(path)
			assert.NoError(t, err, "artifact must be kept when the upload is not confirmed")
		})
	}
}

func TestUploadTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	path := writeArtifact(t, "ACME.xlsx")
	out := newTestUploader(t, url).Upload(context.Background(), "ACME", path)

	assert.Equal(t, StatusServerFailure, out.Status)
	assert.True(t, out.Retryable)
	assert.Zero(t, out.HTTPStatus)
	assert.FileExists(t, path)
}

func TestUploadMissingArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a missing artifact")
	}))
	defer srv.Close()

	out := newTestUploader(t, srv.URL).Upload(context.Background(), "ACME", filepath.Join(t.TempDir(), "ACME.xlsx"))

	assert.Equal(t, StatusFileError, out.Status)
	assert.False(t, out.Retryable)
	assert.True(t, errors.Is(out.Err(), errors.ErrFileSystem))
}

func TestUploadDeleteFailureStaysSuccess(t *testing.T) {
	path := writeArtifact(t, "ACME.xlsx")

	// the file vanishes while the request is in flight
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = os.Remove(path)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	out := newTestUploader(t, srv.URL).Upload(context.Background(), "ACME", path)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Contains(t, out.Message, "artifact not deleted")
	assert.NoError(t, out.Err())
}

func TestUploadURLEscapesSymbol(t *testing.T) {
	u := New(http.DefaultClient, Config{BaseURL: "http://localhost:3000/api/admin/stock-details"}, nil)
	assert.Equal(t, "http://localhost:3000/api/admin/stock-details/M&M/upload", u.UploadURL("M&M"))
	assert.Equal(t, "http://localhost:3000/api/admin/stock-details/A%2FB/upload", u.UploadURL("A/B"))
}
