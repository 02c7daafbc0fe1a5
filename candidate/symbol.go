// Package candidate selects the symbols a sync run should fetch and upload.
//
// The candidate store is owned by the listing importer and the ingestion
// endpoint; this package only reads selection fields, plus the seeding path
// used by `exportsync candidates import`.
package candidate

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultClassification is the series marker of ordinary equity listings.
const DefaultClassification = "EQ"

// Symbol is one security in the candidate store.
type Symbol struct {
	Symbol         string          `json:"symbol" yaml:"symbol"`
	DisplayName    string          `json:"display_name" yaml:"display_name"`
	Classification string          `json:"classification" yaml:"classification"`
	Active         bool            `json:"active" yaml:"active"`
	HasDocument    bool            `json:"has_document" yaml:"has_document"`
	MarketLot      int64           `json:"market_lot,omitempty" yaml:"market_lot,omitempty"` // 0 = unknown
	FaceValue      decimal.Decimal `json:"face_value" yaml:"face_value"`                     // zero = unknown
}

// Normalize uppercases and trims a ticker.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeList uppercases, trims and de-duplicates symbols. First occurrence wins;
// blanks are dropped.
func NormalizeList(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		s := Normalize(raw)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// importanceLess orders by market lot, then face value (both descending), then symbol.
func importanceLess(a, b Symbol) bool {
	if a.MarketLot != b.MarketLot {
		return a.MarketLot > b.MarketLot
	}
	if c := a.FaceValue.Cmp(b.FaceValue); c != 0 {
		return c > 0
	}
	return a.Symbol < b.Symbol
}
