package batch

import "fmt"

// Terminal is the final state of one processed item.
type Terminal string

const (
	TerminalUploaded Terminal = "uploaded"
	TerminalSkipped  Terminal = "skipped"   // no document upstream
	TerminalNotFound Terminal = "not_found" // sweep: no matching symbol
	TerminalFailed   Terminal = "failed"
)

// Stats is the accounting of one run. It is a value: Record returns an
// updated copy and never mutates the receiver.
type Stats struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	NotFound  int      `json:"not_found"`
	Errors    []string `json:"errors,omitempty"` // failed items, in processing order
}

// NewStats starts the accounting for total items.
func NewStats(total int) Stats {
	return Stats{Total: total}
}

// Record accounts for one item reaching t. label is appended to Errors for
// TerminalFailed.
func (s Stats) Record(t Terminal, label string) Stats {
	next := s
	next.Processed++
	switch t {
	case TerminalUploaded:
		next.Success++
	case TerminalSkipped:
		next.Skipped++
	case TerminalNotFound:
		next.NotFound++
	case TerminalFailed:
		next.Failed++
		// full slice expression: never share a backing array with s
		next.Errors = append(s.Errors[:len(s.Errors):len(s.Errors)], label)
	default:
		panic(fmt.Sprintf("batch: unknown terminal state %q", t))
	}
	return next
}

// Terminals is the number of items that reached a terminal state.
func (s Stats) Terminals() int {
	return s.Success + s.Failed + s.Skipped + s.NotFound
}

// Complete reports whether every item reached a terminal state.
func (s Stats) Complete() bool {
	return s.Processed == s.Total && s.Terminals() == s.Total
}

// SuccessRate is Success/Total in percent; 0 for an empty run.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// Percent is Processed/Total in percent; 100 for an empty run.
func (s Stats) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// Fields returns the counters as metadata for progress emitters.
func (s Stats) Fields() map[string]interface{} {
	return map[string]interface{}{
		"total":     s.Total,
		"processed": s.Processed,
		"success":   s.Success,
		"failed":    s.Failed,
		"skipped":   s.Skipped,
		"not_found": s.NotFound,
	}
}

// Summary is Fields plus the success rate and failed items.
func (s Stats) Summary() map[string]interface{} {
	m := s.Fields()
	m["success_rate"] = fmt.Sprintf("%.1f%%", s.SuccessRate())
	if len(s.Errors) > 0 {
		m["errors"] = s.Errors
	}
	return m
}
