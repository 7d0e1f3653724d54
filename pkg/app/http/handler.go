// Package http adapts error-returning handlers to net/http and renders
// ServiceErrors as JSON.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
)

const unexpectedErrorMessage = "Unexpected Service Error"

// HandlerFunc is an http.HandlerFunc that reports failure by returning an error.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HandleError adapts h for chi or any other net/http router:
//
//	r.Post("/api/v1/transfers", apphttp.HandleError(h.create))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler writes the ServiceError message and status. Any other
// error becomes a generic 500 so internal details never reach the client.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		WriteJSON(w, http.StatusInternalServerError, &ErrorResponse{
			Error: unexpectedErrorMessage,
			Code:  http.StatusInternalServerError,
		})
		return
	}

	status := svcErr.StatusCode()
	WriteJSON(w, status, &ErrorResponse{Error: svcErr.Message, Code: status})
}

// WriteJSON writes data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
