// Package sharing holds the upload, access and expiry workflows for
// password-protected projects.
package sharing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound means the project or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrGone means the project expired or was deleted.
	ErrGone = errors.New("gone")
	// ErrUnauthorized means the password or download token did not match.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTooManyAttempts means the caller is locked out for now.
	ErrTooManyAttempts = errors.New("too many attempts")
)

// Issue is one rejected input, usually one file of a batch.
type Issue struct {
	File   string `json:"file,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem with a request. Nothing has been
// written when it is returned.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.File != "" {
			parts = append(parts, is.File+": "+is.Reason)
		} else {
			parts = append(parts, is.Reason)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(file, reason string) *ValidationError {
	return &ValidationError{Issues: []Issue{{File: file, Reason: reason}}}
}

// LockedError is returned while an attempt limiter blocks a caller.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrTooManyAttempts }

// DependencyError wraps a failed registry or blob store call. Op names the
// step; Err is for logs only and must not reach clients.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *DependencyError) Unwrap() error { return e.Err }

func depErr(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}
