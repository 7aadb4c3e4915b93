// Package apperr classifies failures so callers can decide whether to skip,
// retry, report 404, or abort.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	// KindValidation marks malformed input. The row or request is skipped.
	KindValidation
	KindNotFound
	// KindTransientStorage marks lock contention that may succeed on retry.
	KindTransientStorage
	// KindIntegrityConflict marks a duplicate unique-key creation.
	KindIntegrityConflict
	// KindFatal must abort the enclosing transaction and propagate.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransientStorage:
		return "transient_storage"
	case KindIntegrityConflict:
		return "integrity_conflict"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Error is a classified error. Msg is safe to show to API callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error wrapping err (which may be nil).
func E(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

// HTTPStatus maps a kind to the status code an API handler should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientStorage:
		return http.StatusServiceUnavailable
	case KindIntegrityConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
