package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	apphttp "github.com/chainsafe/escrow-bridge/pkg/app/http"
	"github.com/chainsafe/escrow-bridge/pkg/auth"
	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

const maxBodySize = 1 << 20

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the public transfer endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{service: service, logger: logger}

	r.Post("/api/v1/transfers", apphttp.HandleError(h.create))
	r.Post("/api/v1/transfers/start", apphttp.HandleError(h.start))
	r.Post("/api/v1/transfers/verify", apphttp.HandleError(h.verify))
	r.Get("/api/v1/transfers/{txId}", apphttp.HandleError(h.get))
}

// RegisterAdminRoutes registers the operator endpoints on the given chi router
func RegisterAdminRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{service: service, logger: logger}

	r.Post("/api/v1/admin/listeners/cancel", apphttp.HandleError(h.cancelListener))
	r.Post("/api/v1/admin/transfers/{txId}/refund", apphttp.HandleError(h.refund))
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) error {
	var req transfer.CreateRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	resp, err := h.service.CreateTransfer(r.Context(), &req)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

// start blocks until the transfer finishes. The work is detached from the
// request so a dropped client cannot abandon a transfer mid-hop.
func (h *HTTP) start(w http.ResponseWriter, r *http.Request) error {
	var req transfer.StartRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.TxID == "" {
		return apperrors.BadRequestError(nil, "txId required")
	}

	resp, err := h.service.StartTransfer(context.WithoutCancel(r.Context()), req.TxID)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) verify(w http.ResponseWriter, r *http.Request) error {
	var req transfer.VerifyRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	resp, err := h.service.VerifyTransaction(r.Context(), &req)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) cancelListener(w http.ResponseWriter, r *http.Request) error {
	var req transfer.CancelListenerRequest
	if err := decode(r, &req); err != nil {
		return err
	}

	h.audit(r, "cancel_listener", req.TxID)
	if err := h.service.CancelListener(r.Context(), &req); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) refund(w http.ResponseWriter, r *http.Request) error {
	txID := chi.URLParam(r, "txId")
	h.audit(r, "refund", txID)
	resp, err := h.service.RefundTransfer(r.Context(), txID)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

// audit records which operator invoked an admin action.
func (h *HTTP) audit(r *http.Request, action, txID string) {
	operator, _ := auth.OperatorFromContext(r.Context())
	h.logger.Info("Admin action",
		zap.String("action", action),
		zap.String("operator", operator),
		zap.String("tx_id", txID),
	)
}
