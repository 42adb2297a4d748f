// Package perr defines the tagged-union error taxonomy shared across ployer's
// core components and the coarse mapping from error kind to HTTP status.
package perr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the categories the rest of the
// system (API handlers, the deployment executor, background loops) branches
// on. Kinds never carry message text themselves; wrap an underlying error
// with New or Wrap instead.
type Kind int

const (
	// KindUnknown is the zero value; treat it as an internal error.
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindBadInput
	KindMissingDependency
	KindTransient
	KindIntegrity
	KindCryptoFailure
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadInput:
		return "bad_input"
	case KindMissingDependency:
		return "missing_dependency"
	case KindTransient:
		return "transient"
	case KindIntegrity:
		return "integrity"
	case KindCryptoFailure:
		return "crypto_failure"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a tagged-union error: a Kind plus the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with no wrapped cause.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap tags an existing error with a Kind, in the "msg: %w" style used
// throughout the adapters this package services.
func Wrap(k Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Errors that
// never passed through New/Wrap are treated as KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus is the small total function mapping an error Kind to the HTTP
// status code an API caller should see.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadInput:
		return http.StatusBadRequest
	case KindMissingDependency:
		return http.StatusServiceUnavailable
	case KindTransient, KindIntegrity, KindCryptoFailure:
		return http.StatusInternalServerError
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NotFound, Conflict, etc. are small convenience constructors mirroring the
// kind table above, used at call sites instead of spelling out New(Kind...).
func NotFound(msg string) error          { return New(KindNotFound, msg) }
func Conflict(msg string) error          { return New(KindConflict, msg) }
func Unauthorized(msg string) error      { return New(KindUnauthorized, msg) }
func BadInput(msg string) error          { return New(KindBadInput, msg) }
func MissingDependency(msg string) error { return New(KindMissingDependency, msg) }
