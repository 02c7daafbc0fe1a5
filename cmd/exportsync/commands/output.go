package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exportsync/batch"
	"github.com/teranos/exportsync/display"
)

// maxListedFailures caps the failure table; the failure file has the full list.
const maxListedFailures = 25

// printStats writes the final accounting of a run. The emitter has already
// printed the summary in terminal mode, so only failures are listed there.
func printStats(cmd *cobra.Command, stats batch.Stats) error {
	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(out(cmd), statsOutput(stats))
	}
	if len(stats.Errors) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(stats.Errors))
	for i, label := range stats.Errors {
		if i == maxListedFailures {
			rows = append(rows, []string{"...", fmt.Sprintf("%d more", len(stats.Errors)-maxListedFailures)})
			break
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), label})
	}
	fmt.Fprintln(out(cmd), pterm.Yellow(fmt.Sprintf("%d failed:", stats.Failed)))
	return display.WriteTable(out(cmd), []string{"#", "ITEM"}, rows)
}

type statsJSON struct {
	batch.Stats
	SuccessRate float64 `json:"success_rate"`
	Complete    bool    `json:"complete"`
}

func statsOutput(stats batch.Stats) statsJSON {
	return statsJSON{
		Stats:       stats,
		SuccessRate: stats.SuccessRate(),
		Complete:    stats.Complete(),
	}
}
