package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/batch"
	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/db"
	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/history"
	dbtest "github.com/teranos/exportsync/internal/testing"
)

func defaultConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestSyncSource(t *testing.T) {
	listFile := filepath.Join(t.TempDir(), "watchlist.txt")
	require.NoError(t, os.WriteFile(listFile, []byte("wipro # large cap\nTCS\n"), 0644))

	tests := []struct {
		name     string
		mode     string
		symbols  string
		listFile string
		want     candidate.Source
	}{
		{"default mode", "all", "", "", candidate.Source{Mode: candidate.ModeAll}},
		{"importance", "Importance", "", "", candidate.Source{Mode: candidate.ModeImportance}},
		{"priority", "priority", "", "", candidate.Source{Mode: candidate.ModePriority}},
		{"symbols imply list", "all", "tcs, infy", "", candidate.Source{Mode: candidate.ModeList, Symbols: []string{"TCS", "INFY"}}},
		{"symbols then file", "all", "INFY", listFile, candidate.Source{Mode: candidate.ModeList, Symbols: []string{"INFY", "WIPRO", "TCS"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := syncSource(tt.mode, tt.symbols, tt.listFile)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncSource_Errors(t *testing.T) {
	_, err := syncSource("everything", "", "")
	assert.Error(t, err)

	_, err = syncSource("list", "", "")
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = syncSource("all", " , ", "")
	assert.Error(t, err)

	_, err = syncSource("all", "", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSyncOptions_MatchDefaults(t *testing.T) {
	assert.Equal(t, batch.DefaultOptions(), syncOptions(defaultConfig(t)))
}

func TestSweepConfig(t *testing.T) {
	cfg := defaultConfig(t)
	sc := sweepConfig(cfg)
	assert.Equal(t, "./downloads", sc.Dir)
	assert.Equal(t, "not-found", sc.QuarantineDir)
	assert.Equal(t, time.Second, sc.ItemDelay)
	assert.True(t, sc.AbortOnAuthFailure)

	cfg.Sweep.Dir = "/srv/drop"
	assert.Equal(t, "/srv/drop", sweepConfig(cfg).Dir)
}

func TestBindConfigFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "sync", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().Int("batch-size", 0, "")
	cmd.Flags().String("mode", "", "")
	cmd.Flags().Bool("dry-run", false, "")
	BindConfigFlag(cmd.Flags(), "batch-size", "run.batch_size")
	BindConfigFlag(cmd.Flags(), "mode", "run.mode")

	require.NoError(t, cmd.Flags().Parse([]string{"--batch-size", "7"}))

	v := viper.New()
	am.SetDefaults(v)
	require.NoError(t, bindConfigFlags(v, cmd.Flags()))

	assert.Equal(t, 7, v.GetInt("run.batch_size"), "changed flag wins")
	assert.Equal(t, "all", v.GetString("run.mode"), "unchanged flag keeps the configured value")
}

func TestFormatSettings(t *testing.T) {
	settings := am.DefaultSettings()

	data, err := formatSettings(settings, "toml")
	require.NoError(t, err)
	var fromTOML map[string]interface{}
	require.NoError(t, toml.Unmarshal(data, &fromTOML))
	assert.Contains(t, fromTOML, "run")

	data, err = formatSettings(settings, "yaml")
	require.NoError(t, err)
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Contains(t, fromYAML, "sweep")

	data, err = formatSettings(settings, "json")
	require.NoError(t, err)
	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Contains(t, fromJSON, "source")

	_, err = formatSettings(settings, "ini")
	assert.Error(t, err)
}

func candidateStore(t *testing.T) *candidate.Store {
	t.Helper()
	conn := dbtest.CreateTestDB(t)
	dbtest.SeedStocks(t, conn,
		dbtest.StockRow{Symbol: "TCS", Name: "Tata Consultancy Services Ltd"},
		dbtest.StockRow{Symbol: "INFY", Name: "Infosys Limited"},
		dbtest.StockRow{Symbol: "RELIANCE", Name: "Reliance Industries", HasDocument: true},
	)
	return candidate.NewStore(conn, db.DialectSQLite, zaptest.NewLogger(t).Sugar())
}

func TestCandidateNotice(t *testing.T) {
	conn := dbtest.CreateTestDB(t)
	dbtest.SeedStocks(t, conn,
		dbtest.StockRow{Symbol: "TCS", Name: "Tata Consultancy Services Ltd"},
		dbtest.StockRow{Symbol: "RELIANCE", Name: "Reliance Industries", HasDocument: true},
		dbtest.StockRow{Symbol: "OLDCO", Name: "Old Co", Inactive: true},
		dbtest.StockRow{Symbol: "GOLDBEES", Name: "Gold ETF", Series: "BE"},
	)
	store := candidate.NewStore(conn, db.DialectSQLite, zaptest.NewLogger(t).Sugar())

	tests := []struct {
		symbol string
		want   string
	}{
		{"TCS", ""},
		{"RELIANCE", "already has a document"},
		{"OLDCO", "inactive"},
		{"GOLDBEES", "classified BE"},
		{"NOPE", "not in the candidate store"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, err := candidateNotice(context.Background(), store, tt.symbol, "")
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestCandidateNotice_StoreError(t *testing.T) {
	conn := dbtest.CreateTestDB(t)
	store := candidate.NewStore(conn, db.DialectSQLite, zaptest.NewLogger(t).Sugar())
	require.NoError(t, conn.Close())

	_, err := candidateNotice(context.Background(), store, "TCS", "EQ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
}

func TestListCandidates(t *testing.T) {
	store := candidateStore(t)
	ctx := context.Background()

	pending, err := listCandidates(ctx, store, "EQ", "all", false)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "INFY", pending[0].Symbol)

	active, err := listCandidates(ctx, store, "EQ", "all", true)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	_, err = listCandidates(ctx, store, "EQ", "bogus", false)
	assert.Error(t, err)
}

func TestImportListing(t *testing.T) {
	store := candidateStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "EQUITY_L.csv")
	csvData := "SYMBOL,NAME OF COMPANY, SERIES,MARKET LOT,FACE VALUE\n" +
		"WIPRO,Wipro Limited,EQ,1,2\n" +
		"TCS,Tata Consultancy Services Limited,EQ,1,1\n"
	require.NoError(t, os.WriteFile(path, []byte(csvData), 0644))

	written, err := importListing(ctx, store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	counts, err := store.Counts(ctx, "EQ")
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 3, counts.Pending)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("SYMBOL\n"), 0644))
	_, err = importListing(ctx, store, empty)
	assert.Error(t, err)

	_, err = importListing(ctx, store, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRunStatusAndRows(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	running := history.Record{ID: "0123456789abcdef", Kind: batch.KindSync, StartedAt: started}
	ok := history.Record{ID: "b", Kind: batch.KindSync, StartedAt: started, FinishedAt: &finished,
		Stats: batch.Stats{Total: 2, Processed: 2, Success: 2}}
	failures := ok
	failures.Stats = batch.Stats{Total: 2, Processed: 2, Success: 1, Failed: 1, Errors: []string{"TCS"}}
	aborted := failures
	aborted.AbortReason = "authentication failure"

	assert.Equal(t, "unfinished", runStatus(running))
	assert.Equal(t, "ok", runStatus(ok))
	assert.Equal(t, "failures", runStatus(failures))
	assert.Equal(t, "aborted", runStatus(aborted))

	rows := runRows([]history.Record{running, ok})
	require.Len(t, rows, 2)
	assert.Equal(t, "01234567", rows[0][0])
	assert.Equal(t, "-", rows[0][4])
	assert.Equal(t, "1m30s", rows[1][4])
}

func TestWriteRunDetail(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	finished := time.Now()
	r := history.Record{
		ID: "run-1", Kind: batch.KindSweep, StartedAt: finished.Add(-time.Minute), FinishedAt: &finished,
		Stats:       batch.Stats{Total: 3, Processed: 3, Success: 1, Failed: 1, NotFound: 1, Errors: []string{"Acme.xlsx (ACME)"}},
		AbortReason: "authentication failure",
	}

	var buf bytes.Buffer
	require.NoError(t, writeRunDetail(&buf, r))
	assert.Contains(t, buf.String(), "run-1")
	assert.Contains(t, buf.String(), "Abort reason")
	assert.Contains(t, buf.String(), "failed: Acme.xlsx (ACME)")
}

func jsonCommand() *cobra.Command {
	root := &cobra.Command{Use: "exportsync"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "sync"}
	root.AddCommand(child)
	return child
}

func TestPrintStats_JSON(t *testing.T) {
	cmd := jsonCommand()
	require.NoError(t, cmd.Root().PersistentFlags().Set("json", "true"))
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	stats := batch.Stats{Total: 4, Processed: 4, Success: 2, Failed: 1, Skipped: 1, Errors: []string{"TCS"}}
	require.NoError(t, printStats(cmd, stats))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 4, got["total"])
	assert.EqualValues(t, 50, got["success_rate"])
	assert.Equal(t, true, got["complete"])
	assert.Equal(t, []interface{}{"TCS"}, got["errors"])
}

func TestPrintStats_Terminal(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	cmd := jsonCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, printStats(cmd, batch.Stats{Total: 1, Processed: 1, Success: 1}))
	assert.Empty(t, buf.String(), "clean runs print nothing beyond the emitter summary")

	require.NoError(t, printStats(cmd, batch.Stats{Total: 2, Processed: 2, Failed: 2, Errors: []string{"TCS", "INFY"}}))
	assert.Contains(t, buf.String(), "2 failed")
	assert.Contains(t, buf.String(), "INFY")
}

func TestReportError_IncludesHints(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	err := errors.WithHint(errors.Wrap(errors.ErrAuthFailure, "upload TCS (HTTP 401)"), "refresh ingest.token")

	var buf bytes.Buffer
	ReportError(&buf, err)
	assert.Contains(t, buf.String(), "upload TCS (HTTP 401)")
	assert.Contains(t, buf.String(), "refresh ingest.token")
}
