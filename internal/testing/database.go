package testing

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/teranos/exportsync/db"
)

// CreateTestDB creates a migrated in-memory SQLite test database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// every pooled connection to :memory: would otherwise be its own empty database
	conn.SetMaxOpenConns(1)

	t.Cleanup(func() {
		conn.Close()
	})

	if err := db.Migrate(conn, db.DialectSQLite, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return conn
}

// StockRow is a row for SeedStocks.
type StockRow struct {
	Symbol      string
	Name        string
	Series      string // empty = EQ
	Inactive    bool
	HasDocument bool
	MarketLot   int64           // 0 = NULL
	FaceValue   decimal.Decimal // zero = NULL
}

// SeedStocks inserts rows into the stocks table.
func SeedStocks(t *testing.T, conn *sql.DB, rows ...StockRow) {
	t.Helper()

	for _, r := range rows {
		series := r.Series
		if series == "" {
			series = "EQ"
		}
		var lot interface{}
		if r.MarketLot != 0 {
			lot = r.MarketLot
		}
		var face interface{}
		if !r.FaceValue.IsZero() {
			face = r.FaceValue.String()
		}
		_, err := conn.Exec(
			`INSERT INTO stocks (symbol, company_name, series, is_active, has_actual_data, market_lot, face_value)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Symbol, r.Name, series, !r.Inactive, r.HasDocument, lot, face,
		)
		if err != nil {
			t.Fatalf("Failed to seed stock %s: %v", r.Symbol, err)
		}
	}
}

// MarkHasDocument flips has_actual_data the way the ingestion endpoint does after a confirmed upload.
func MarkHasDocument(t *testing.T, conn *sql.DB, symbols ...string) {
	t.Helper()

	for _, s := range symbols {
		if _, err := conn.Exec(`UPDATE stocks SET has_actual_data = 1 WHERE symbol = ?`, s); err != nil {
			t.Fatalf("Failed to mark %s: %v", s, err)
		}
	}
}
