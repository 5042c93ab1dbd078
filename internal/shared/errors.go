// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"
)

// Error kinds reported to callers. Operations wrap one of these sentinels
// with fmt.Errorf("...: %w", ...) so the HTTP layer can classify failures
// with errors.Is without parsing message text. Anything not wrapping a
// sentinel is an internal failure and is reported generically.
var (
	// ErrValidation marks malformed or missing input. No mutation happened.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks a missing account or record where one is required.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation that would break an invariant or lost
	// a concurrent update race. The stored state is left exactly as it was.
	ErrConflict = errors.New("conflict")
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
// This is another form of SQLite concurrency error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError checks if the error is either a SQLITE_BUSY
// or "database is locked" error. These are both SQLite concurrency
// errors that typically warrant retry logic.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
