// Package errors categorizes service failures so the HTTP layer can map them
// to a status code and a user-safe message. The wrapped error is for logs only.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError.
type Category int

const (
	// CategoryGeneralError is an unexpected failure inside the service.
	CategoryGeneralError Category = iota
	// CategoryDataError covers invalid payloads, parameters and unsupported values.
	CategoryDataError
	// CategoryUnauthorized means the caller presented no or invalid credentials.
	CategoryUnauthorized
	// CategoryForbidden means the credentials are valid but not sufficient.
	CategoryForbidden
	// CategoryResourceNotFound means the addressed resource does not exist.
	CategoryResourceNotFound
	// CategoryDataConflict means the request collides with the current resource state.
	CategoryDataConflict
	// CategoryDependencyFailure means a chain, bridge or database call failed.
	CategoryDependencyFailure
	// CategoryConnectionTimeout means a dependency or an awaited event did not answer in time.
	CategoryConnectionTimeout
)

var categories = map[Category]struct {
	name     string
	status   int
	fallback string
}{
	CategoryGeneralError:      {"CategoryGeneralError", http.StatusInternalServerError, "internal server error"},
	CategoryDataError:         {"CategoryDataError", http.StatusBadRequest, "bad request"},
	CategoryUnauthorized:      {"CategoryUnauthorized", http.StatusUnauthorized, "unauthorized"},
	CategoryForbidden:         {"CategoryForbidden", http.StatusForbidden, "request forbidden"},
	CategoryResourceNotFound:  {"CategoryResourceNotFound", http.StatusNotFound, "resource not found"},
	CategoryDataConflict:      {"CategoryDataConflict", http.StatusConflict, "conflict"},
	CategoryDependencyFailure: {"CategoryDependencyFailure", http.StatusBadGateway, "dependency failure"},
	CategoryConnectionTimeout: {"CategoryConnectionTimeout", http.StatusGatewayTimeout, "timeout"},
}

func (c Category) String() string {
	if meta, ok := categories[c]; ok {
		return meta.name
	}
	return categories[CategoryGeneralError].name
}

// ServiceError carries a Category, the Message shown to the caller and the
// internal cause.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error returns the internal cause, falling back to Message.
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode returns the HTTP status for the error category.
func (err ServiceError) StatusCode() int {
	if meta, ok := categories[err.Category]; ok {
		return meta.status
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a ServiceError of category cat.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(categories[cat].fallback + ": " + message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind a generic message.
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

// BadRequestError rejects invalid input. message is returned to the caller.
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message)
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message)
}

// ConflictError rejects a request that does not fit the current state, such
// as starting a transfer twice.
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message)
}

// DependencyError reports a failed chain, bridge or database call.
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}

// TimeoutError reports that a dependency or an awaited event timed out.
func TimeoutError(err error, message string) error {
	return newError(CategoryConnectionTimeout, err, message)
}
