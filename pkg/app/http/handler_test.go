package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	"github.com/chainsafe/escrow-bridge/pkg/config"
)

func serve(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	h := HandleError(func(http.ResponseWriter, *http.Request) error { return err })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleError_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"bad request", apperrors.BadRequestError(nil, "invalid JSON"), http.StatusBadRequest, "invalid JSON"},
		{"not found", apperrors.ResourceNotFoundError(nil, "transfer not found"), http.StatusNotFound, "transfer not found"},
		{"conflict", apperrors.ConflictError(nil, "transfer already started"), http.StatusConflict, "transfer already started"},
		{"dependency", apperrors.DependencyError(errors.New("rpc: connection refused"), "transfer failed, try again"), http.StatusBadGateway, "transfer failed, try again"},
		{"timeout", apperrors.TimeoutError(nil, "no deposit"), http.StatusGatewayTimeout, "no deposit"},
		{"wrapped", fmt.Errorf("outer: %w", apperrors.UnAuthorizedError(nil, "invalid API key")), http.StatusUnauthorized, "invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.msg, body.Error)
			assert.Equal(t, tt.status, body.Code)
		})
	}
}

func TestHandleError_HidesUnknownErrors(t *testing.T) {
	rec, body := serve(t, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, unexpectedErrorMessage, body.Error)
}

func TestHandleError_PassesThroughSuccess(t *testing.T) {
	h := HandleError(func(w http.ResponseWriter, _ *http.Request) error {
		WriteJSON(w, http.StatusCreated, map[string]string{"txId": "abc"})
		return nil
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"txId":"abc"}`, rec.Body.String())
}

func TestServeAndWait_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeAndWait(ctx, http.NotFoundHandler(), zap.NewNop(), &config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeAndWait did not return after cancel")
	}
}

func TestServeAndWait_RejectsNilArgs(t *testing.T) {
	require.Error(t, ServeAndWait(context.Background(), nil, nil, &config.ServerConfig{}))
	require.Error(t, ServeAndWait(context.Background(), http.NotFoundHandler(), nil, nil))
}
