// Package errors provides error handling for exportsync.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators reading the run summary
//
// On top of that it declares the pipeline's failure taxonomy as sentinels.
// Stage-specific error types (fetch.Failure, ingest.Outcome) unwrap to these
// so callers can branch with errors.Is regardless of where the failure came from.
//
// Usage:
//
//	if err := store.Ping(ctx); err != nil {
//	    return errors.Wrap(errors.Mark(err, errors.ErrStoreUnavailable), "select candidates")
//	}
//
//	if errors.Is(err, errors.ErrAuthFailure) {
//	    // abort the run
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// GetStack returns the reportable stack trace attached to an error, if any.
var GetStack = crdb.GetReportableStackTrace

// Pipeline failure taxonomy.
var (
	// ErrStoreUnavailable means the candidate store could not be queried. Fatal for a run.
	ErrStoreUnavailable = New("candidate store unavailable")

	// ErrNetwork is a transport-level failure (DNS, connect, timeout, reset).
	ErrNetwork = New("network error")

	// ErrNotFound means the upstream source has no document for the symbol.
	ErrNotFound = New("not found")

	// ErrInvalidPayload means the upstream answered 2xx with something that is not an export.
	ErrInvalidPayload = New("invalid payload")

	// ErrServerError is a non-2xx answer other than 404 (fetch) or a failed upload.
	ErrServerError = New("server error")

	// ErrAuthFailure means the ingestion endpoint rejected the bearer token (401/403).
	ErrAuthFailure = New("authentication failure")

	// ErrMalformedResponse means the ingestion endpoint answered without a usable JSON contract.
	ErrMalformedResponse = New("malformed response")

	// ErrFileSystem covers local artifact read/write/move failures.
	ErrFileSystem = New("file system error")
)

// IsExpectedOutcome reports whether err is a "no data" outcome that is recorded
// as skipped rather than failed.
func IsExpectedOutcome(err error) bool {
	return err != nil && IsAny(err, ErrNotFound, ErrInvalidPayload)
}

// IsStoreUnavailable checks if an error is or wraps ErrStoreUnavailable
func IsStoreUnavailable(err error) bool {
	return err != nil && Is(err, ErrStoreUnavailable)
}

// StoreUnavailable marks err as a candidate store failure and adds context.
func StoreUnavailable(err error, context string) error {
	return WithHint(
		Wrap(Mark(err, ErrStoreUnavailable), context),
		"check database.dsn and that the database is reachable",
	)
}
