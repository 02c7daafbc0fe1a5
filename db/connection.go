package db

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/exportsync/errors"
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database before failing.
const SQLiteBusyTimeoutMS = 5000

// DialectFor picks the backend from a DSN: postgres:// and postgresql:// URLs are
// PostgreSQL, everything else is treated as a SQLite path.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open opens the database named by dsn.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	dialect := DialectFor(dsn)
	if logger != nil {
		logger.Debugw("Opening database", "dialect", dialect, "dsn", redactDSN(dsn))
	}

	switch dialect {
	case DialectPostgres:
		return openPostgres(dsn, logger)
	default:
		return openSQLite(dsn, logger)
	}
}

// OpenWithMigrations opens the database and applies pending migrations.
func OpenWithMigrations(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(dsn, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := Migrate(db, DialectFor(dsn), logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return db, nil
}

func openSQLite(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// WAL keeps `candidates ls` usable while a sync writes run history
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"dialect", DialectSQLite,
			"wal_mode", true,
		)
	}

	return db, nil
}

func openPostgres(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"dsn", redactDSN(dsn),
			"dialect", DialectPostgres,
		)
	}

	return db, nil
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return dsn
	}
	userinfo := dsn[schemeEnd+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return dsn[:schemeEnd+3] + userinfo[:colon] + ":****" + dsn[at:]
	}
	return dsn
}
