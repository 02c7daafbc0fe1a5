package fetch

import (
	"fmt"

	"github.com/teranos/exportsync/errors"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindNetwork        Kind = "network"         // transport error or timeout
	KindNotFound       Kind = "not_found"       // HTTP 404: provider has no such symbol
	KindServer         Kind = "server"          // any other non-2xx
	KindInvalidPayload Kind = "invalid_payload" // 2xx but too small or an HTML page
	KindFileSystem     Kind = "file_system"     // artifact could not be written
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return errors.ErrNetwork
	case KindNotFound:
		return errors.ErrNotFound
	case KindServer:
		return errors.ErrServerError
	case KindInvalidPayload:
		return errors.ErrInvalidPayload
	default:
		return errors.ErrFileSystem
	}
}

// Failure is the error returned by Fetch. It unwraps to the taxonomy sentinel
// for its Kind, so errors.Is(err, errors.ErrNotFound) works on it.
type Failure struct {
	Kind       Kind
	Symbol     string
	StatusCode int // 0 when no response was received
	Err        error
}

func newFailure(kind Kind, symbol string, status int, cause error) *Failure {
	var err error
	if cause == nil {
		err = kind.sentinel()
	} else {
		err = errors.Mark(cause, kind.sentinel())
	}
	return &Failure{Kind: kind, Symbol: symbol, StatusCode: status, Err: err}
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (HTTP %d): %v", f.Symbol, f.Kind, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", f.Symbol, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
