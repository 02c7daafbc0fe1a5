package candidate

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/exportsync/errors"
)

// Mode selects how a run builds its candidate list.
type Mode string

const (
	ModeAll        Mode = "all"        // every pending symbol, natural order
	ModeImportance Mode = "importance" // every pending symbol, largest first
	ModePriority   Mode = "priority"   // built-in large-cap list
	ModeList       Mode = "list"       // caller-supplied list
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAll, ModeImportance, ModePriority, ModeList:
		return m, nil
	default:
		return "", errors.Newf("unknown candidate mode %q (want all, importance, priority or list)", s)
	}
}

// PrioritySymbols are the large caps a priority run works through first.
var PrioritySymbols = []string{
	"HDFCBANK", "RELIANCE", "TCS", "INFY", "ICICIBANK", "BHARTIARTL", "ITC", "SBIN",
	"LT", "KOTAKBANK", "HCLTECH", "ASIANPAINT", "MARUTI", "AXISBANK", "TITAN", "NESTLEIND",
	"ULTRACEMCO", "BAJFINANCE", "SUNPHARMA", "WIPRO", "ADANIPORTS", "COALINDIA", "NTPC", "POWERGRID",
	"HINDUNILVR", "TATAMOTORS", "TECHM", "ONGC", "DRREDDY", "EICHERMOT", "JSWSTEEL", "INDUSINDBK",
	"BAJAJFINSV", "GRASIM", "HINDALCO", "BRITANNIA", "CIPLA", "HEROMOTOCO", "APOLLOHOSP", "BPCL",
}

// Source describes where a run's candidates come from.
type Source struct {
	Mode    Mode
	Symbols []string // ModeList only
}

// Filter turns the source into a store query for classification.
func (s Source) Filter(classification string) (Filter, error) {
	f := Filter{Classification: classification}
	switch s.Mode {
	case ModeAll, "":
	case ModeImportance:
		f.ByImportance = true
	case ModePriority:
		f.Priority = PrioritySymbols
	case ModeList:
		list := NormalizeList(s.Symbols)
		if len(list) == 0 {
			return Filter{}, errors.WithHint(
				errors.New("list mode needs at least one symbol"),
				"pass --symbols A,B,C or --list-file path",
			)
		}
		f.Priority = list
	default:
		return Filter{}, errors.Newf("unknown candidate mode %q", s.Mode)
	}
	return f, nil
}

// String describes the source for logs and run history.
func (s Source) String() string {
	if s.Mode == "" {
		return string(ModeAll)
	}
	return string(s.Mode)
}

// ReadListFile loads symbols from a text or YAML file.
// .yaml/.yml files hold either a sequence or a mapping with a `symbols` sequence;
// anything else is one symbol per line, with `#` comments and commas allowed.
func ReadListFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read list file %s", path)
	}

	var symbols []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		symbols, err = parseYAMLList(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parse list file %s", path)
		}
	default:
		symbols = parseTextList(data)
	}

	return NormalizeList(symbols), nil
}

func parseYAMLList(data []byte) ([]string, error) {
	var seq []string
	if err := yaml.Unmarshal(data, &seq); err == nil {
		return seq, nil
	}

	var doc struct {
		Symbols []string `yaml:"symbols"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Symbols, nil
}

func parseTextList(data []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		for _, field := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			out = append(out, field)
		}
	}
	return out
}

// SplitSymbols parses a --symbols flag value.
func SplitSymbols(flag string) []string {
	return NormalizeList(parseTextList([]byte(flag)))
}
