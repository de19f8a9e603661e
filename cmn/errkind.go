package cmn

import (
	"net/http"

	"github.com/pkg/errors"
)

// ErrKind classifies every failure the coordinator can produce, 1:1 with an
// HTTP status per spec.md §7.
type ErrKind int

const (
	ErrBadRequest ErrKind = iota
	ErrNotFound
	ErrMethodNotAllowed
	ErrRequestTimeout
	ErrPayloadTooLarge
	ErrUnprocessable
	ErrClientDisconnect
	ErrInternal
	ErrServiceUnavailable
	ErrInsufficientStorage
)

// httpStatus is the ErrKind -> HTTP status mapping table (400/404/405/408/
// 413/422/499/500/503/507).
var httpStatus = map[ErrKind]int{
	ErrBadRequest:          http.StatusBadRequest,
	ErrNotFound:            http.StatusNotFound,
	ErrMethodNotAllowed:    http.StatusMethodNotAllowed,
	ErrRequestTimeout:      http.StatusRequestTimeout,
	ErrPayloadTooLarge:     http.StatusRequestEntityTooLarge,
	ErrUnprocessable:       http.StatusUnprocessableEntity,
	ErrClientDisconnect:    499, // nginx/client-closed-request convention
	ErrInternal:            http.StatusInternalServerError,
	ErrServiceUnavailable:  http.StatusServiceUnavailable,
	ErrInsufficientStorage: http.StatusInsufficientStorage,
}

// ReqError is a request-scoped error carrying its ErrKind; the coordinator's
// HTTP entrypoint maps it to a status code and (when set) attaches nexe
// headers to the error response regardless of kind.
type ReqError struct {
	Kind ErrKind
	msg  string
	Hdrs map[string]string // nexe headers to surface even on failure
}

func (e *ReqError) Error() string { return e.msg }

func (e *ReqError) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func NewReqError(kind ErrKind, msg string) *ReqError {
	return &ReqError{Kind: kind, msg: msg}
}

// Wrap attaches msg as context to err via pkg/errors, preserving the
// original ErrKind if err (or something it wraps) is a *ReqError.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// AsReqError unwraps err looking for a *ReqError, defaulting to ErrInternal
// when none is found -- every unexpected error surfaces as 500 rather than
// leaking a Go error string with no status mapping.
func AsReqError(err error) *ReqError {
	var re *ReqError
	if errors.As(err, &re) {
		return re
	}
	return &ReqError{Kind: ErrInternal, msg: err.Error()}
}
