// Package apperr classifies gateway failures into the stable error codes
// exposed on the wire. Handlers wrap causes with a Kind close to where the
// failure happens and the transport layer maps the kind to an HTTP status.
package apperr

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindLLMUnavailable
	KindLLMGeneration
	KindRateLimited
)

// Code returns the stable wire identifier for the kind.
func (k Kind) Code() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindLLMUnavailable:
		return "llm_unavailable"
	case KindLLMGeneration:
		return "llm_generation"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindLLMUnavailable:
		return http.StatusServiceUnavailable
	case KindLLMGeneration:
		return http.StatusInternalServerError
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind alongside a wrapped cause chain.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// KindOf walks the wrapped chain and returns the outermost Kind, defaulting
// to KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
