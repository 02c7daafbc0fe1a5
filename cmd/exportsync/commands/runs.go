package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/history"
)

// RunsCmd shows run history
var RunsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show sync and sweep history",
	Long: `Show sync and sweep history.

Without arguments the most recent runs are listed, newest first. With a run id
the run's counters and failed items are shown. A run with no finish time was
interrupted before it could close its record.

Examples:
  exportsync runs
  exportsync runs --limit 5 --json
  exportsync runs 0b6f7c9e-2f1d-4d1e-9a43-5f1c2c0e8a11`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

var runsLimit int

func init() {
	RunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		record, err := st.history.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.WriteJSON(out(cmd), record)
		}
		return writeRunDetail(out(cmd), *record)
	}

	records, err := st.history.List(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if records == nil {
			records = []history.Record{}
		}
		return display.WriteJSON(out(cmd), records)
	}
	if len(records) == 0 {
		fmt.Fprint(out(cmd), pterm.Info.Sprintln("No runs recorded yet"))
		return nil
	}
	return display.WriteTable(out(cmd),
		[]string{"ID", "KIND", "MODE", "STARTED", "DURATION", "TOTAL", "OK", "FAILED", "SKIPPED", "NOT FOUND", "STATUS"},
		runRows(records))
}

func runRows(records []history.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Kind,
			r.Mode,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			formatDuration(r),
			strconv.Itoa(r.Stats.Total),
			strconv.Itoa(r.Stats.Success),
			strconv.Itoa(r.Stats.Failed),
			strconv.Itoa(r.Stats.Skipped),
			strconv.Itoa(r.Stats.NotFound),
			runStatus(r),
		})
	}
	return rows
}

func writeRunDetail(w io.Writer, r history.Record) error {
	rows := [][]string{
		{"ID", r.ID},
		{"Kind", r.Kind},
		{"Mode", r.Mode},
		{"Started", r.StartedAt.Local().Format(time.RFC3339)},
		{"Duration", formatDuration(r)},
		{"Status", runStatus(r)},
		{"Total", strconv.Itoa(r.Stats.Total)},
		{"Processed", strconv.Itoa(r.Stats.Processed)},
		{"Success", strconv.Itoa(r.Stats.Success)},
		{"Failed", strconv.Itoa(r.Stats.Failed)},
		{"Skipped", strconv.Itoa(r.Stats.Skipped)},
		{"Not found", strconv.Itoa(r.Stats.NotFound)},
		{"Success rate", fmt.Sprintf("%.1f%%", r.Stats.SuccessRate())},
	}
	if r.AbortReason != "" {
		rows = append(rows, []string{"Abort reason", r.AbortReason})
	}
	if err := display.WriteTable(w, []string{"FIELD", "VALUE"}, rows); err != nil {
		return err
	}
	for _, item := range r.Stats.Errors {
		fmt.Fprintf(w, "  failed: %s\n", item)
	}
	return nil
}

func runStatus(r history.Record) string {
	switch {
	case !r.Finished():
		return "unfinished"
	case r.AbortReason != "":
		return "aborted"
	case r.Stats.Failed > 0:
		return "failures"
	default:
		return "ok"
	}
}

func formatDuration(r history.Record) string {
	if !r.Finished() {
		return "-"
	}
	return r.Duration().Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
