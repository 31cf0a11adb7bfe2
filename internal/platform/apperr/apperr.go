// Package apperr defines the error kinds returned by the domain services and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds. Every error produced by a service wraps exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

// Error carries the kind plus enough context (field or identifier) for a
// caller to build a user-facing message.
type Error struct {
	Kind  error
	Field string
	ID    string
	Msg   string
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.ID != "" && e.Msg != "":
		return fmt.Sprintf("%s (%s)", e.Msg, e.ID)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

// Validation reports malformed or out-of-range input for field.
func Validation(field, format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports an invariant violation on the record identified by id.
func Conflict(id, format string, args ...interface{}) error {
	return &Error{Kind: ErrConflict, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports that resource id does not exist.
func NotFound(resource, id string) error {
	return &Error{Kind: ErrNotFound, ID: id, Msg: resource + " not found"}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }

// HTTPStatus maps an error kind onto a status code. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ToHTTP converts err into an echo error. Internal errors do not leak their
// message to the client.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
