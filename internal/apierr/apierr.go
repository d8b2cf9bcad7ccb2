package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Invalid(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}

func Internal(code string, err error) *Error {
	return New(http.StatusInternalServerError, code, err)
}

// From classifies any error into an *Error, defaulting to Internal so
// handlers never leak an unmapped failure as a 200.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("internal", err)
}
