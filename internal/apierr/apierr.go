package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so the outermost handler can pick a response shape.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindUpstream      Kind = "upstream"
	KindDecode        Kind = "decode"
)

// Error carries a failure kind and the HTTP-style status it maps to.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != "" {
		return string(e.Kind) + " error"
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

// Validation reports a malformed inbound request.
func Validation(msg string) *Error {
	return New(KindValidation, http.StatusBadRequest, errors.New(msg))
}

// MissingKey reports a required configuration key, file or variable that is absent.
func MissingKey(path string) *Error {
	return New(KindConfiguration, http.StatusInternalServerError, fmt.Errorf("missing key %q", path))
}

// Configuration wraps a configuration failure.
func Configuration(err error) *Error {
	return New(KindConfiguration, http.StatusInternalServerError, err)
}

// Upstream wraps a failed call to the inference endpoint.
func Upstream(err error) *Error {
	return New(KindUpstream, http.StatusInternalServerError, err)
}

// Decode wraps a model reply that could not be decoded.
func Decode(err error) *Error {
	return New(KindDecode, http.StatusInternalServerError, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
