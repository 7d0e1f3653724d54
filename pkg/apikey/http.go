package apikey

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	apphttp "github.com/chainsafe/escrow-bridge/pkg/app/http"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderMasterKey = "X-Master-Key"
)

// Middleware rejects requests without a valid, unexpired X-API-Key.
func Middleware(svc *Service, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain := r.Header.Get(HeaderAPIKey)
			if plain == "" {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "api key required"))
				return
			}

			_, err := svc.Validate(r.Context(), plain)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrExpiredKey):
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "api key expired"))
			case errors.Is(err, ErrInvalidKey):
				logger.Warn("Rejected api key", zap.String("api_key", Redact(plain)))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid api key"))
			default:
				logger.Error("Api key lookup failed", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.GeneralError(err))
			}
		})
	}
}

type issueRequest struct {
	Label string `json:"label"`
}

type issueResponse struct {
	APIKey    string    `json:"apiKey"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type handler struct {
	svc       *Service
	masterKey string
	logger    *zap.Logger
}

// RegisterRoutes mounts POST /api/v1/keys guarded by the master key.
func RegisterRoutes(r chi.Router, svc *Service, masterKey string, logger *zap.Logger) {
	h := &handler{svc: svc, masterKey: masterKey, logger: logger}
	r.Post("/api/v1/keys", apphttp.HandleError(h.issue))
}

func (h *handler) issue(w http.ResponseWriter, r *http.Request) error {
	given := r.Header.Get(HeaderMasterKey)
	if h.masterKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.masterKey)) != 1 {
		return apperrors.UnAuthorizedError(nil, "invalid master key")
	}

	var req issueRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return apperrors.BadRequestError(err, "invalid JSON")
		}
	}
	if len(req.Label) > 128 {
		return apperrors.BadRequestError(nil, "label too long")
	}

	plain, k, err := h.svc.Issue(r.Context(), req.Label)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	h.logger.Info("Issued api key",
		zap.String("key_id", k.ID),
		zap.String("api_key", Redact(plain)),
		zap.Time("expires_at", k.ExpiresAt))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(&issueResponse{APIKey: plain, ID: k.ID, ExpiresAt: k.ExpiresAt})
	return nil
}
