package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/candidate"
	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/errors"
)

// CandidatesCmd groups candidate store commands
var CandidatesCmd = &cobra.Command{
	Use:     "candidates",
	Aliases: []string{"cand"},
	Short:   "Inspect and seed the candidate store",
	Long: `Inspect and seed the candidate store.

Examples:
  exportsync candidates ls --mode importance --limit 20
  exportsync candidates stats
  exportsync candidates import EQUITY_L.csv`,
}

var candidatesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List symbols a sync run would select",
	Args:  cobra.NoArgs,
	RunE:  runCandidatesLs,
}

var candidatesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document coverage for the configured classification",
	Args:  cobra.NoArgs,
	RunE:  runCandidatesStats,
}

var candidatesImportCmd = &cobra.Command{
	Use:   "import <listing.csv>",
	Short: "Seed the store from an exchange listing CSV",
	Long: `Seed the store from an exchange listing CSV.

The CSV needs a SYMBOL column; NAME OF COMPANY, SERIES, MARKET LOT and FACE
VALUE are read when present. Existing symbols are updated in place and keep
their document flag.`,
	Args: cobra.ExactArgs(1),
	RunE: runCandidatesImport,
}

var (
	candidatesMode  string
	candidatesLimit int
	candidatesAll   bool
)

func init() {
	candidatesLsCmd.Flags().StringVar(&candidatesMode, "mode", "all", "Selection mode: all, importance, priority")
	candidatesLsCmd.Flags().IntVar(&candidatesLimit, "limit", 50, "Rows to show (0 = all)")
	candidatesLsCmd.Flags().BoolVar(&candidatesAll, "all", false, "List every active symbol, with or without a document")

	CandidatesCmd.AddCommand(candidatesLsCmd)
	CandidatesCmd.AddCommand(candidatesStatsCmd)
	CandidatesCmd.AddCommand(candidatesImportCmd)
}

func runCandidatesLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	symbols, err := listCandidates(cmd.Context(), st.candidates, cfg.Run.Classification, candidatesMode, candidatesAll)
	if err != nil {
		return err
	}
	total := len(symbols)
	if candidatesLimit > 0 && len(symbols) > candidatesLimit {
		symbols = symbols[:candidatesLimit]
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(out(cmd), symbols)
	}
	if total == 0 {
		fmt.Fprint(out(cmd), pterm.Info.Sprintln("No candidates"))
		return nil
	}
	if err := display.WriteTable(out(cmd), []string{"SYMBOL", "NAME", "LOT", "FACE", "DOCUMENT"}, symbolRows(symbols)); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "%d of %d shown\n", len(symbols), total)
	return nil
}

type activeLister interface {
	SelectCandidates(ctx context.Context, f candidate.Filter) ([]candidate.Symbol, error)
	ListActive(ctx context.Context, classification string) ([]candidate.Symbol, error)
}

func listCandidates(ctx context.Context, store activeLister, classification, mode string, all bool) ([]candidate.Symbol, error) {
	if all {
		return store.ListActive(ctx, classification)
	}
	m, err := candidate.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	filter, err := candidate.Source{Mode: m}.Filter(classification)
	if err != nil {
		return nil, err
	}
	return store.SelectCandidates(ctx, filter)
}

func symbolRows(symbols []candidate.Symbol) [][]string {
	rows := make([][]string, 0, len(symbols))
	for _, s := range symbols {
		lot, face := "-", "-"
		if s.MarketLot > 0 {
			lot = strconv.FormatInt(s.MarketLot, 10)
		}
		if !s.FaceValue.IsZero() {
			face = s.FaceValue.String()
		}
		doc := "no"
		if s.HasDocument {
			doc = "yes"
		}
		rows = append(rows, []string{s.Symbol, s.DisplayName, lot, face, doc})
	}
	return rows
}

func runCandidatesStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.candidates.Counts(cmd.Context(), cfg.Run.Classification)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(out(cmd), counts)
	}

	coverage := 0.0
	if active := counts.WithDocument + counts.Pending; active > 0 {
		coverage = float64(counts.WithDocument) / float64(active) * 100
	}
	return display.WriteTable(out(cmd), []string{cfg.Run.Classification, "COUNT"}, [][]string{
		{"Total", strconv.Itoa(counts.Total)},
		{"With document", strconv.Itoa(counts.WithDocument)},
		{"Pending", strconv.Itoa(counts.Pending)},
		{"Inactive", strconv.Itoa(counts.Inactive)},
		{"Coverage", fmt.Sprintf("%.1f%%", coverage)},
	})
}

type symbolUpserter interface {
	Upsert(ctx context.Context, symbols []candidate.Symbol) (int, error)
}

func runCandidatesImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	written, err := importListing(cmd.Context(), st.candidates, args[0])
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(out(cmd), map[string]interface{}{"file": args[0], "written": written})
	}
	fmt.Fprint(out(cmd), pterm.Success.Sprintf("Imported %d symbols from %s\n", written, args[0]))
	return nil
}

func importListing(ctx context.Context, store symbolUpserter, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	symbols, err := candidate.ParseListingCSV(f)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", path)
	}
	if len(symbols) == 0 {
		return 0, errors.Newf("%s has no symbol rows", path)
	}
	return store.Upsert(ctx, symbols)
}
