// Package resolve maps loosely formatted company names (typically the file
// name of a hand-downloaded export) onto candidate symbols.
//
// A name that is exactly an active ticker (sync leaves SYMBOL.xlsx behind when
// an upload fails) resolves to that ticker first. Otherwise matching runs in
// tiers over display names. A tier only wins with exactly one match; several
// matches fall through to the next tier, and if nothing later is unique the
// result is Unresolved with the ambiguous candidates attached. No guessing.
package resolve

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/exportsync/candidate"
)

// Strategy names the tier that produced a result.
type Strategy string

const (
	StrategyTicker       Strategy = "ticker"
	StrategyExact        Strategy = "exact"
	StrategyPartial      Strategy = "partial"
	StrategyTokenOverlap Strategy = "token_overlap"
	StrategyNone         Strategy = "none"
)

// minTokenLen is the shortest input word considered by token overlap.
const minTokenLen = 3

// Result is the outcome of one resolution.
type Result struct {
	InputName  string   `json:"input_name"`
	Symbol     string   `json:"symbol,omitempty"`
	Strategy   Strategy `json:"strategy"`
	Candidates []string `json:"candidates,omitempty"` // symbols, sorted; set only when ambiguous
}

// Resolved reports whether a unique symbol was found.
func (r Result) Resolved() bool {
	return r.Symbol != ""
}

// Ambiguous reports whether the name matched several symbols and none was picked.
func (r Result) Ambiguous() bool {
	return r.Symbol == "" && len(r.Candidates) > 1
}

type entry struct {
	symbol string
	name   string // lowercased display name
}

// Index is an immutable snapshot of candidate names.
type Index struct {
	entries []entry
	tickers map[string]bool
}

// NewIndex snapshots symbols. Entries without a display name only match by ticker.
func NewIndex(symbols []candidate.Symbol) *Index {
	idx := &Index{entries: make([]entry, 0, len(symbols)), tickers: make(map[string]bool, len(symbols))}
	for _, s := range symbols {
		if s.Symbol != "" {
			idx.tickers[s.Symbol] = true
		}
		name := strings.ToLower(strings.TrimSpace(s.DisplayName))
		if name == "" || s.Symbol == "" {
			continue
		}
		idx.entries = append(idx.entries, entry{symbol: s.Symbol, name: name})
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		return idx.entries[i].symbol < idx.entries[j].symbol
	})
	return idx
}

// Len returns the number of indexed names.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Resolve maps looseName to a symbol.
func (idx *Index) Resolve(looseName string) Result {
	result := Result{InputName: looseName, Strategy: StrategyNone}
	trimmed := strings.TrimSpace(looseName)
	if trimmed == "" {
		return result
	}
	// case-sensitive: "Tcs" is a name, "TCS" is a ticker
	if idx.tickers[trimmed] {
		result.Symbol = trimmed
		result.Strategy = StrategyTicker
		return result
	}
	query := strings.ToLower(trimmed)

	tiers := []struct {
		strategy Strategy
		match    func(name string) bool
	}{
		{StrategyExact, func(name string) bool { return name == query }},
		{StrategyPartial, func(name string) bool { return strings.Contains(name, query) }},
		{StrategyTokenOverlap, tokenMatcher(query)},
	}

	for _, tier := range tiers {
		if tier.match == nil {
			continue
		}
		matches := idx.find(tier.match)
		switch {
		case len(matches) == 1:
			result.Symbol = matches[0]
			result.Strategy = tier.strategy
			result.Candidates = nil
			return result
		case len(matches) > 1 && result.Candidates == nil:
			// keep the most specific ambiguity
			result.Candidates = matches
		}
	}
	return result
}

func (idx *Index) find(match func(name string) bool) []string {
	var out []string
	for _, e := range idx.entries {
		if match(e.name) {
			out = append(out, e.symbol)
		}
	}
	return out
}

// tokenMatcher requires every input word longer than two characters to appear
// in the name. Nil when the input has no such word.
func tokenMatcher(query string) func(string) bool {
	var words []string
	for _, w := range strings.Fields(query) {
		if len(w) >= minTokenLen {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}
	return func(name string) bool {
		for _, w := range words {
			if !strings.Contains(name, w) {
				return false
			}
		}
		return true
	}
}

// NameFromFile returns the company name encoded in an export's file name.
func NameFromFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}
