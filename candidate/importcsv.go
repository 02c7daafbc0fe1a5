package candidate

import (
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/teranos/exportsync/errors"
)

// symbolClean keeps the characters exchange tickers use (M&M, BAJAJ-AUTO).
var symbolClean = regexp.MustCompile(`[^A-Z0-9&-]`)

// csvColumns maps header cells to fields by substring, first match wins.
type csvColumns struct {
	symbol, name, series, lot, face int
}

func detectColumns(header []string) (csvColumns, error) {
	cols := csvColumns{symbol: -1, name: -1, series: -1, lot: -1, face: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case cols.symbol < 0 && strings.Contains(key, "symbol"):
			cols.symbol = i
		case cols.name < 0 && (strings.Contains(key, "name") || strings.Contains(key, "company")):
			cols.name = i
		case cols.series < 0 && strings.Contains(key, "series"):
			cols.series = i
		case cols.lot < 0 && strings.Contains(key, "lot"):
			cols.lot = i
		case cols.face < 0 && strings.Contains(key, "face"):
			cols.face = i
		}
	}
	if cols.symbol < 0 {
		return cols, errors.Newf("no symbol column in header %v", header)
	}
	return cols, nil
}

// ParseListingCSV reads an exchange listing export (SYMBOL, NAME OF COMPANY, SERIES,
// MARKET LOT, FACE VALUE, in any order and with any extra columns).
// Index rows such as "NIFTY 50" and duplicate symbols are skipped. Every row is
// imported as active.
func ParseListingCSV(r io.Reader) ([]Symbol, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []Symbol
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read csv line %d", line)
		}

		raw := strings.ToUpper(cell(record, cols.symbol))
		if strings.HasPrefix(raw, "NIFTY") {
			continue
		}
		symbol := symbolClean.ReplaceAllString(raw, "")
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		sym := Symbol{
			Symbol:         symbol,
			DisplayName:    cell(record, cols.name),
			Classification: strings.ToUpper(cell(record, cols.series)),
			Active:         true,
		}
		if sym.Classification == "" {
			sym.Classification = DefaultClassification
		}
		if v := cell(record, cols.lot); v != "" {
			lot, err := strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: market lot %q", line, v)
			}
			sym.MarketLot = lot
		}
		if v := cell(record, cols.face); v != "" {
			face, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: face value %q", line, v)
			}
			sym.FaceValue = face
		}
		out = append(out, sym)
	}
	return out, nil
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
