// Package am loads exportsync configuration.
//
// Sources are merged lowest to highest: built-in defaults, /etc/exportsync,
// ~/.exportsync, the nearest project exportsync.toml (searched upward from the
// working directory), EXPORTSYNC_* environment variables, then command flags.
package am

import "time"

// Config represents the exportsync configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Run      RunConfig      `mapstructure:"run"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the candidate store.
// A postgres:// or postgresql:// DSN selects PostgreSQL, anything else is a SQLite path.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SourceConfig configures the upstream export provider
type SourceConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	UserAgent            string `mapstructure:"user_agent"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	MinPayloadBytes      int64  `mapstructure:"min_payload_bytes"`
	MaxPayloadBytes      int64  `mapstructure:"max_payload_bytes"`
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"` // 0 = unlimited
	// AllowPrivateHosts permits loopback/private upstreams (local mirrors, tests)
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// IngestConfig configures the authenticated upload endpoint
type IngestConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RunConfig configures batch orchestration
type RunConfig struct {
	Classification     string `mapstructure:"classification"`
	Mode               string `mapstructure:"mode"` // all, importance, priority, list
	DownloadDir        string `mapstructure:"download_dir"`
	BatchSize          int    `mapstructure:"batch_size"`
	ItemDelayMS        int    `mapstructure:"item_delay_ms"`
	BatchDelaySeconds  int    `mapstructure:"batch_delay_seconds"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RetryDelaySeconds  []int  `mapstructure:"retry_delay_seconds"` // last entry repeats
	ProgressEvery      int    `mapstructure:"progress_every"`
	FailedFile         string `mapstructure:"failed_file"`
	AbortOnAuthFailure bool   `mapstructure:"abort_on_auth_failure"`
}

// SweepConfig configures the drop-folder reconciliation sweep
type SweepConfig struct {
	Dir           string `mapstructure:"dir"` // empty = run.download_dir
	QuarantineDir string `mapstructure:"quarantine_dir"`
	ItemDelayMS   int    `mapstructure:"item_delay_ms"`
	ProgressEvery int    `mapstructure:"progress_every"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// ConfigFileName is the name searched for in project, user and system locations.
const ConfigFileName = "exportsync.toml"

// FetchTimeout returns the per-request upstream timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// UploadTimeout returns the per-request ingestion timeout.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

// ItemDelay returns the pause between two symbols of one chunk.
func (c *Config) ItemDelay() time.Duration {
	return time.Duration(c.Run.ItemDelayMS) * time.Millisecond
}

// BatchDelay returns the pause between chunks.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Run.BatchDelaySeconds) * time.Second
}

// RetryBackoff returns the upload retry delay table.
func (c *Config) RetryBackoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.Run.RetryDelaySeconds))
	for _, s := range c.Run.RetryDelaySeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// SweepDir returns the drop folder, falling back to the download directory.
func (c *Config) SweepDir() string {
	if c.Sweep.Dir != "" {
		return c.Sweep.Dir
	}
	return c.Run.DownloadDir
}

// SweepItemDelay returns the pause between two swept files.
func (c *Config) SweepItemDelay() time.Duration {
	return time.Duration(c.Sweep.ItemDelayMS) * time.Millisecond
}
