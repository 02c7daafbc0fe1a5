package candidate

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
	dbtest "github.com/teranos/exportsync/internal/testing"
)

func symbolsOf(list []Symbol) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Symbol
	}
	return out
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	conn := dbtest.CreateTestDB(t)
	dbtest.SeedStocks(t, conn,
		dbtest.StockRow{Symbol: "TCS", Name: "Tata Consultancy Services Ltd", MarketLot: 1, FaceValue: decimal.NewFromInt(1)},
		dbtest.StockRow{Symbol: "INFY", Name: "Infosys Limited", MarketLot: 1, FaceValue: decimal.NewFromInt(5)},
		dbtest.StockRow{Symbol: "ACME", Name: "Acme Industries", MarketLot: 50, FaceValue: decimal.NewFromInt(2)},
		dbtest.StockRow{Symbol: "ZEN", Name: "Zen Technologies", MarketLot: 50, FaceValue: decimal.RequireFromString("2.5")},
		dbtest.StockRow{Symbol: "RELIANCE", Name: "Reliance Industries", HasDocument: true},
		dbtest.StockRow{Symbol: "OLDCO", Name: "Old Company", Inactive: true},
		dbtest.StockRow{Symbol: "GSEC", Name: "Government Bond", Series: "GB"},
	)
	return NewStore(conn, db.DialectSQLite, zaptest.NewLogger(t).Sugar())
}

func TestSelectCandidates_NaturalOrder(t *testing.T) {
	store := seededStore(t)

	got, err := store.SelectCandidates(context.Background(), Filter{Classification: "EQ"})
	require.NoError(t, err)

	// excludes has-document, inactive and other-series rows; ascending symbol
	assert.Equal(t, []string{"ACME", "INFY", "TCS", "ZEN"}, symbolsOf(got))
	for _, s := range got {
		assert.True(t, s.Active)
		assert.False(t, s.HasDocument)
		assert.Equal(t, "EQ", s.Classification)
	}
}

func TestSelectCandidates_DefaultClassification(t *testing.T) {
	store := seededStore(t)

	got, err := store.SelectCandidates(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSelectCandidates_ByImportance(t *testing.T) {
	store := seededStore(t)

	got, err := store.SelectCandidates(context.Background(), Filter{Classification: "EQ", ByImportance: true})
	require.NoError(t, err)

	// lot 50 first (face 2.5 before 2), then lot 1 (face 5 before 1)
	assert.Equal(t, []string{"ZEN", "ACME", "INFY", "TCS"}, symbolsOf(got))
	assert.True(t, got[0].FaceValue.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, int64(50), got[0].MarketLot)
}

func TestSelectCandidates_Priority(t *testing.T) {
	store := seededStore(t)

	got, err := store.SelectCandidates(context.Background(), Filter{
		Classification: "EQ",
		// RELIANCE has a document, NOPE is unknown, tcs is lowercase and repeated
		Priority: []string{"tcs", "RELIANCE", "NOPE", "ACME", "TCS"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS", "ACME"}, symbolsOf(got))
}

func TestSelectCandidates_Idempotence(t *testing.T) {
	conn := dbtest.CreateTestDB(t)
	dbtest.SeedStocks(t, conn,
		dbtest.StockRow{Symbol: "AAA", Name: "A"},
		dbtest.StockRow{Symbol: "BBB", Name: "B"},
	)
	store := NewStore(conn, db.DialectSQLite, nil)

	first, err := store.SelectCandidates(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	dbtest.MarkHasDocument(t, conn, "AAA", "BBB")

	second, err := store.SelectCandidates(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestListActiveAndGet(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	active, err := store.ListActive(ctx, "EQ")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "INFY", "RELIANCE", "TCS", "ZEN"}, symbolsOf(active))

	got, err := store.Get(ctx, " infy ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Infosys Limited", got.DisplayName)

	missing, err := store.Get(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCounts(t *testing.T) {
	store := seededStore(t)

	c, err := store.Counts(context.Background(), "EQ")
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 6, WithDocument: 1, Pending: 4, Inactive: 1}, c)

	empty, err := store.Counts(context.Background(), "XX")
	require.NoError(t, err)
	assert.Equal(t, Counts{}, empty)
}

func TestUpsert(t *testing.T) {
	conn := dbtest.CreateTestDB(t)
	dbtest.SeedStocks(t, conn, dbtest.StockRow{Symbol: "TCS", Name: "Old Name", HasDocument: true})
	store := NewStore(conn, db.DialectSQLite, nil)
	ctx := context.Background()

	n, err := store.Upsert(ctx, []Symbol{
		{Symbol: "tcs", DisplayName: "Tata Consultancy Services", Active: true, MarketLot: 1},
		{Symbol: "WIPRO", DisplayName: "Wipro Ltd", Active: true, FaceValue: decimal.NewFromInt(2)},
		{Symbol: "  ", DisplayName: "blank"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tcs, err := store.Get(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, "Tata Consultancy Services", tcs.DisplayName)
	assert.True(t, tcs.HasDocument, "upsert must not reset has_actual_data")

	wipro, err := store.Get(ctx, "WIPRO")
	require.NoError(t, err)
	assert.Equal(t, "EQ", wipro.Classification)
	assert.True(t, wipro.FaceValue.Equal(decimal.NewFromInt(2)))
	assert.False(t, wipro.HasDocument)
}

func TestSelectCandidates_StoreUnavailable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT symbol, company_name").
		WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	store := NewStore(conn, db.DialectPostgres, nil)
	_, err = store.SelectCandidates(context.Background(), Filter{Classification: "EQ"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "select candidates")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectCandidates_PostgresPlaceholders(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"symbol", "company_name", "series", "is_active", "has_actual_data", "market_lot", "face_value"}).
		AddRow("TCS", "Tata Consultancy", "EQ", true, false, nil, "1.00").
		AddRow("INFY", "Infosys", "EQ", true, false, int64(1), nil)

	mock.ExpectQuery(`is_active = \$1 AND series = \$2 AND has_actual_data = \$3 AND symbol IN \(\$4, \$5\)`).
		WithArgs(true, "EQ", false, "INFY", "TCS").
		WillReturnRows(rows)

	store := NewStore(conn, db.DialectPostgres, nil)
	got, err := store.SelectCandidates(context.Background(), Filter{Classification: "EQ", Priority: []string{"INFY", "TCS"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"INFY", "TCS"}, symbolsOf(got))
	assert.True(t, got[1].FaceValue.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1), got[0].MarketLot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounts_StoreUnavailable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("database is locked"))

	_, err = NewStore(conn, db.DialectSQLite, nil).Counts(context.Background(), "EQ")
	assert.True(t, errors.IsStoreUnavailable(err))
}
