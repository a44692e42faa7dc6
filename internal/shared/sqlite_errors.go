// Package shared holds small helpers needed by more than one internal
// package.
package shared

import "strings"

// The SQLite driver reports lock contention as plain-text errors, so the
// classifiers below match on the message.

// IsSQLiteBusyError reports whether err is a SQLITE_BUSY failure: another
// connection held the write lock past the busy timeout.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError reports whether err is a "database is locked" failure,
// the table-level flavor of the same contention.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports whether err is either contention failure.
// These are transient and safe to retry; constraint violations are not and
// deliberately do not match.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
