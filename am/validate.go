package am

import (
	"net/url"
	"strings"

	"github.com/teranos/exportsync/errors"
)

// Run modes accepted by run.mode
var validModes = map[string]bool{
	"all":        true,
	"importance": true,
	"priority":   true,
	"list":       true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn cannot be empty")
	}

	if err := validateURL("source.base_url", c.Source.BaseURL); err != nil {
		return err
	}
	if err := validateURL("ingest.base_url", c.Ingest.BaseURL); err != nil {
		return err
	}

	if c.Source.TimeoutSeconds <= 0 {
		return errors.Newf("source.timeout_seconds must be > 0, got %d", c.Source.TimeoutSeconds)
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		return errors.Newf("ingest.timeout_seconds must be > 0, got %d", c.Ingest.TimeoutSeconds)
	}
	if c.Source.MinPayloadBytes < 0 {
		return errors.Newf("source.min_payload_bytes must be >= 0, got %d", c.Source.MinPayloadBytes)
	}
	if c.Source.MaxPayloadBytes <= c.Source.MinPayloadBytes {
		return errors.Newf("source.max_payload_bytes (%d) must be greater than source.min_payload_bytes (%d)",
			c.Source.MaxPayloadBytes, c.Source.MinPayloadBytes)
	}
	// 0 = unlimited, negative = invalid
	if c.Source.MaxRequestsPerMinute < 0 {
		return errors.Newf("source.max_requests_per_minute must be >= 0, got %d", c.Source.MaxRequestsPerMinute)
	}

	if !validModes[c.Run.Mode] {
		return errors.Newf("run.mode must be one of all, importance, priority, list; got %q", c.Run.Mode)
	}
	if strings.TrimSpace(c.Run.Classification) == "" {
		return errors.New("run.classification cannot be empty")
	}
	if c.Run.DownloadDir == "" {
		return errors.New("run.download_dir cannot be empty")
	}
	if c.Run.BatchSize <= 0 {
		return errors.Newf("run.batch_size must be > 0, got %d", c.Run.BatchSize)
	}
	if c.Run.ItemDelayMS < 0 {
		return errors.Newf("run.item_delay_ms must be >= 0, got %d", c.Run.ItemDelayMS)
	}
	if c.Run.BatchDelaySeconds < 0 {
		return errors.Newf("run.batch_delay_seconds must be >= 0, got %d", c.Run.BatchDelaySeconds)
	}
	if c.Run.MaxRetries < 0 {
		return errors.Newf("run.max_retries must be >= 0, got %d", c.Run.MaxRetries)
	}
	for i, d := range c.Run.RetryDelaySeconds {
		if d < 0 {
			return errors.Newf("run.retry_delay_seconds[%d] must be >= 0, got %d", i, d)
		}
	}
	if c.Run.ProgressEvery < 0 {
		return errors.Newf("run.progress_every must be >= 0, got %d", c.Run.ProgressEvery)
	}

	if c.Sweep.ItemDelayMS < 0 {
		return errors.Newf("sweep.item_delay_ms must be >= 0, got %d", c.Sweep.ItemDelayMS)
	}
	if c.Sweep.ProgressEvery < 0 {
		return errors.Newf("sweep.progress_every must be >= 0, got %d", c.Sweep.ProgressEvery)
	}
	if c.Sweep.QuarantineDir == "" {
		return errors.New("sweep.quarantine_dir cannot be empty")
	}

	return nil
}

// ValidateForUpload additionally requires credentials for commands that upload.
func (c *Config) ValidateForUpload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Ingest.Token) == "" {
		return errors.WithHint(
			errors.New("ingest.token cannot be empty"),
			"set EXPORTSYNC_INGEST_TOKEN (or ADMIN_TOKEN) or ingest.token in exportsync.toml",
		)
	}
	return nil
}

func validateURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.Newf("%s cannot be empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Newf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
