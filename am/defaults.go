package am

import (
	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and `am init`.
const (
	DefaultDatabaseDSN   = "exportsync.db"
	DefaultSourceBaseURL = "https://www.screener.in/company"
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultIngestBaseURL = "http://localhost:3000/api/admin/stock-details"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", DefaultDatabaseDSN)

	// Upstream provider
	v.SetDefault("source.base_url", DefaultSourceBaseURL)
	v.SetDefault("source.user_agent", DefaultUserAgent)
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.min_payload_bytes", 2000)     // smaller bodies are error pages, not exports
	v.SetDefault("source.max_payload_bytes", 64<<20)   // 64 MiB
	v.SetDefault("source.max_requests_per_minute", 20) // on top of run.item_delay_ms
	v.SetDefault("source.allow_private_hosts", false)

	// Ingestion endpoint
	v.SetDefault("ingest.base_url", DefaultIngestBaseURL)
	v.SetDefault("ingest.token", "")
	v.SetDefault("ingest.timeout_seconds", 60)

	// Batch orchestration
	v.SetDefault("run.classification", "EQ")
	v.SetDefault("run.mode", "all")
	v.SetDefault("run.download_dir", "./downloads")
	v.SetDefault("run.batch_size", 50)
	v.SetDefault("run.item_delay_ms", 3000)
	v.SetDefault("run.batch_delay_seconds", 30)
	v.SetDefault("run.max_retries", 3)
	v.SetDefault("run.retry_delay_seconds", []int{5})
	v.SetDefault("run.progress_every", 10)
	v.SetDefault("run.failed_file", "failed-stocks.txt")
	v.SetDefault("run.abort_on_auth_failure", true)

	// Reconciliation sweep
	v.SetDefault("sweep.dir", "")
	v.SetDefault("sweep.quarantine_dir", "not-found")
	v.SetDefault("sweep.item_delay_ms", 1000)
	v.SetDefault("sweep.progress_every", 5)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables.
// The ingest token also honours the bare ADMIN_TOKEN the upload scripts used.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("ingest.token", "EXPORTSYNC_INGEST_TOKEN", "ADMIN_TOKEN")
	_ = v.BindEnv("database.dsn", "EXPORTSYNC_DATABASE_DSN", "DATABASE_URL")
}
