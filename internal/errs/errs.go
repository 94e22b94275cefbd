// Package errs defines the error taxonomy shared by every layer of the
// memory bank (spec §4.9, §7). Lower layers may return plain wrapped
// errors; every escape across a component boundary into the facade or
// tool surface must be classified into one of the Kinds below.
package errs

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind is a closed taxonomy of error classes. It is not a Go error type
// hierarchy — it is the classification attached to an Error so that
// callers (and the tool surface's JSON envelope) can switch on it.
type Kind string

const (
	Validation        Kind = "Validation"
	NotFound          Kind = "NotFound"
	Duplicate         Kind = "Duplicate"
	CycleDetected     Kind = "CycleDetected"
	SchemaConflict    Kind = "SchemaConflict"
	UnknownType       Kind = "UnknownType"
	NamespaceMissing  Kind = "NamespaceMissing"
	ProtectedBranch   Kind = "ProtectedBranch"
	BranchContextLost Kind = "BranchContextLost"
	ConnectionError   Kind = "ConnectionError"
	OptimisticConflict Kind = "OptimisticConflict"
	NoInverseRelation Kind = "NoInverseRelation"
	IndexSyncFailed   Kind = "IndexSyncFailed"
	CommitFailed      Kind = "CommitFailed"
	InvalidCursor     Kind = "InvalidCursor"
	Fatal             Kind = "Fatal"
)

// Error is the typed error envelope returned across every public
// boundary (spec §7): a Kind, an actionable message naming the failing
// stage and entity, and optional machine-readable details.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying cause, preserving it
// for errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails returns a copy of e with the given details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Kind: e.Kind, Message: e.Message, Details: merged, cause: e.cause}
}

// As extracts an *Error from err, if any layer in its chain produced one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and Fatal otherwise — an unclassified error escaping to a
// public boundary is treated as fatal rather than silently swallowed.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Fatal
}

// connectionErrorPatterns matches the backend error text spec §4.1
// requires the coordinator to recognize: lost/closed/gone-away/timeout/
// refused/reset/broken pipe, case-insensitively.
var connectionErrorPatterns = regexp.MustCompile(
	`(?i)(connection (lost|closed|refused|reset)|gone away|broken pipe|i/o timeout|EOF|no route to host|operationalerror|interfaceerror)`,
)

// IsConnectionError classifies err as a connection error per spec §4.1:
// either it already carries the ConnectionError Kind, or its text
// matches the well-known pattern set.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		return e.Kind == ConnectionError
	}
	return connectionErrorPatterns.MatchString(err.Error())
}
