package candidate

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
)

// Filter narrows SelectCandidates. Active, classification and missing
// document are always required.
type Filter struct {
	Classification string
	// Priority, when set, restricts results to these symbols in this order.
	Priority []string
	// ByImportance orders by market lot then face value, largest first.
	// Ignored when Priority is set.
	ByImportance bool
}

// Counts summarises document coverage of one classification.
type Counts struct {
	Total        int `json:"total"`
	WithDocument int `json:"with_document"`
	Pending      int `json:"pending"`
	Inactive     int `json:"inactive"`
}

// Store reads and seeds the stocks table.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
}

// NewStore creates a candidate store over conn.
func NewStore(conn *sql.DB, dialect db.Dialect, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: conn, dialect: dialect, logger: logger}
}

const selectColumns = `symbol, company_name, series, is_active, has_actual_data, market_lot, face_value`

// SelectCandidates returns active symbols of f.Classification that have no document yet.
// Without a priority list the order is ascending symbol, or importance order when
// f.ByImportance is set. Any store failure is marked errors.ErrStoreUnavailable.
func (s *Store) SelectCandidates(ctx context.Context, f Filter) ([]Symbol, error) {
	classification := f.Classification
	if classification == "" {
		classification = DefaultClassification
	}

	query := `SELECT ` + selectColumns + ` FROM stocks
		WHERE is_active = ? AND series = ? AND has_actual_data = ?`
	args := []interface{}{true, classification, false}

	priority := NormalizeList(f.Priority)
	if len(f.Priority) > 0 {
		if len(priority) == 0 {
			return nil, nil
		}
		query += ` AND symbol IN (` + placeholders(len(priority)) + `)`
		for _, p := range priority {
			args = append(args, p)
		}
	}
	query += ` ORDER BY symbol`

	symbols, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreUnavailable(err, "select candidates")
	}

	switch {
	case len(priority) > 0:
		symbols = orderByPriority(symbols, priority)
	case f.ByImportance:
		sort.SliceStable(symbols, func(i, j int) bool { return importanceLess(symbols[i], symbols[j]) })
	}

	s.logger.Debugw("Selected candidates",
		"classification", classification,
		"priority", len(priority),
		"by_importance", f.ByImportance,
		"count", len(symbols),
	)
	return symbols, nil
}

// ListActive returns every active symbol of classification regardless of document
// state, in ascending symbol order. This is the resolver's snapshot.
func (s *Store) ListActive(ctx context.Context, classification string) ([]Symbol, error) {
	if classification == "" {
		classification = DefaultClassification
	}
	symbols, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM stocks WHERE is_active = ? AND series = ? ORDER BY symbol`,
		true, classification)
	if err != nil {
		return nil, errors.StoreUnavailable(err, "list active symbols")
	}
	return symbols, nil
}

// Get returns one symbol, or nil if it is not in the store.
func (s *Store) Get(ctx context.Context, symbol string) (*Symbol, error) {
	symbols, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM stocks WHERE symbol = ?`, Normalize(symbol))
	if err != nil {
		return nil, errors.StoreUnavailable(err, "get symbol")
	}
	if len(symbols) == 0 {
		return nil, nil
	}
	return &symbols[0], nil
}

// Counts reports document coverage for classification.
func (s *Store) Counts(ctx context.Context, classification string) (Counts, error) {
	if classification == "" {
		classification = DefaultClassification
	}
	var c Counts
	var total, withDoc, pending, inactive sql.NullInt64
	err := s.db.QueryRowContext(ctx, db.Rebind(s.dialect, `SELECT
			COUNT(*),
			SUM(CASE WHEN is_active = ? AND has_actual_data = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = ? AND has_actual_data = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = ? THEN 1 ELSE 0 END)
		FROM stocks WHERE series = ?`),
		true, true, true, false, false, classification,
	).Scan(&total, &withDoc, &pending, &inactive)
	if err != nil {
		return Counts{}, errors.StoreUnavailable(err, "count candidates")
	}
	c.Total = int(total.Int64)
	c.WithDocument = int(withDoc.Int64)
	c.Pending = int(pending.Int64)
	c.Inactive = int(inactive.Int64)
	return c, nil
}

// Upsert inserts or updates symbols by ticker. has_actual_data is never touched:
// only the ingestion endpoint sets it. Returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, symbols []Symbol) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.StoreUnavailable(err, "begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.Rebind(s.dialect, `INSERT INTO stocks
			(symbol, company_name, series, is_active, market_lot, face_value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = excluded.company_name,
			series = excluded.series,
			is_active = excluded.is_active,
			market_lot = excluded.market_lot,
			face_value = excluded.face_value,
			updated_at = CURRENT_TIMESTAMP`))
	if err != nil {
		return 0, errors.StoreUnavailable(err, "prepare upsert")
	}
	defer stmt.Close()

	written := 0
	for _, sym := range symbols {
		ticker := Normalize(sym.Symbol)
		if ticker == "" {
			continue
		}
		series := sym.Classification
		if series == "" {
			series = DefaultClassification
		}
		var lot interface{}
		if sym.MarketLot > 0 {
			lot = sym.MarketLot
		}
		var face interface{}
		if !sym.FaceValue.IsZero() {
			face = sym.FaceValue.String()
		}
		if _, err := stmt.ExecContext(ctx, ticker, sym.DisplayName, series, sym.Active, lot, face); err != nil {
			return written, errors.Wrapf(err, "upsert %s", ticker)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.StoreUnavailable(err, "commit upsert")
	}
	return written, nil
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var lot sql.NullInt64
		var face decimal.NullDecimal
		if err := rows.Scan(&sym.Symbol, &sym.DisplayName, &sym.Classification,
			&sym.Active, &sym.HasDocument, &lot, &face); err != nil {
			return nil, errors.Wrap(err, "scan stock row")
		}
		sym.MarketLot = lot.Int64
		if face.Valid {
			sym.FaceValue = face.Decimal
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// orderByPriority reorders found to follow priority; symbols missing from the store are dropped.
func orderByPriority(found []Symbol, priority []string) []Symbol {
	bySymbol := make(map[string]Symbol, len(found))
	for _, s := range found {
		bySymbol[s.Symbol] = s
	}
	out := make([]Symbol, 0, len(found))
	for _, p := range priority {
		if s, ok := bySymbol[p]; ok {
			out = append(out, s)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
