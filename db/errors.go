package db

import (
	"strings"

	"github.com/teranos/exportsync/errors"
)

// ErrDatabaseClosed marks a query against a handle that was already closed.
// Run and sweep history treat it as expected after an interrupt.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is, or reads like, a closed-handle error.
// database/sql returns an unexported error for this, so the message is matched too.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || strings.Contains(err.Error(), "database is closed")
}
