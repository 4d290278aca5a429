package httputil

import (
	"errors"
	"net/http"
)

// HTTPError is an error that knows the status it should be answered with.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

// NewError returns an HTTPError for code with message.
func NewError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode returns the status err maps to: the code of a wrapped
// HTTPError, otherwise 500.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// WriteError answers with err. Errors that are not HTTPErrors are reported
// as a generic 500 so internal details stay out of responses.
func WriteError(w http.ResponseWriter, err error) {
	var he *HTTPError
	if errors.As(err, &he) {
		Error(w, he.Code, he.Message)
		return
	}
	Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
