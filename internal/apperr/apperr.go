// Package apperr defines the failure kinds surfaced by the note pipeline.
package apperr

import "errors"

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	InvalidInput       Kind = "invalid_input"
	StorageUnavailable Kind = "storage_unavailable"
	BackupFailed       Kind = "backup_failed"
	UploadFailed       Kind = "upload_failed"
	PersistenceError   Kind = "persistence_error"
	NotFound           Kind = "not_found"
	GrammarCheckFailed Kind = "grammar_check_failed"
	FetchFailed        Kind = "fetch_failed"
	DeleteFailed       Kind = "delete_failed"
)

// Error is a failure tagged with a Kind. Msg describes what was being done;
// Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
