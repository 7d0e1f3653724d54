package service

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

const serviceName = "TransferService"

const identifierMaxLen = 32

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the transfer Service.
// It logs method entry/exit, duration and errors. Sealed wallets never reach it.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// CreateTransfer wraps the service method with logging
func (ls *logService) CreateTransfer(
	ctx context.Context,
	req *transfer.CreateRequest,
) (resp *transfer.CreateResponse, err error) {
	start := time.Now()

	ls.logger.Info("CreateTransfer started",
		zap.String("service", serviceName),
		zap.String("method", "CreateTransfer"),
		zap.String("token", req.Token),
		zap.String("amount", req.Amount.String()),
		zap.String("recipient", req.RecipientAddress),
		zap.Bool("testnet", req.IsTestnet),
		zap.String("identifier", truncateString(req.Identifier, identifierMaxLen)),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("CreateTransfer failed",
				zap.String("service", serviceName),
				zap.String("method", "CreateTransfer"),
				zap.String("token", req.Token),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("CreateTransfer completed",
				zap.String("service", serviceName),
				zap.String("method", "CreateTransfer"),
				zap.String("tx_id", resp.TxID),
				zap.String("payin_address", resp.PayinAddress),
				zap.String("expected_send", resp.ExpectedSendAmount.String()),
				zap.String("expected_receive", resp.ExpectedReceiveAmount.String()),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.CreateTransfer(ctx, req)
}

// StartTransfer wraps the service method with logging
func (ls *logService) StartTransfer(ctx context.Context, txID string) (resp *transfer.StartResponse, err error) {
	start := time.Now()

	ls.logger.Info("StartTransfer started",
		zap.String("service", serviceName),
		zap.String("method", "StartTransfer"),
		zap.String("tx_id", txID),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("StartTransfer failed",
				zap.String("service", serviceName),
				zap.String("method", "StartTransfer"),
				zap.String("tx_id", txID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("StartTransfer completed",
				zap.String("service", serviceName),
				zap.String("method", "StartTransfer"),
				zap.String("tx_id", txID),
				zap.String("status", string(resp.Status)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.StartTransfer(ctx, txID)
}

// GetTransfer wraps the service method; reads are logged at debug level
func (ls *logService) GetTransfer(ctx context.Context, txID string) (resp *transfer.View, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.logger.Warn("GetTransfer failed",
				zap.String("service", serviceName),
				zap.String("method", "GetTransfer"),
				zap.String("tx_id", txID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		ls.logger.Debug("GetTransfer completed",
			zap.String("service", serviceName),
			zap.String("method", "GetTransfer"),
			zap.String("tx_id", txID),
			zap.String("status", string(resp.Status)),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.GetTransfer(ctx, txID)
}

// VerifyTransaction wraps the service method with logging
func (ls *logService) VerifyTransaction(
	ctx context.Context,
	req *transfer.VerifyRequest,
) (resp *transfer.VerifyResponse, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.logger.Warn("VerifyTransaction failed",
				zap.String("service", serviceName),
				zap.String("method", "VerifyTransaction"),
				zap.String("network", req.Network),
				zap.String("tx_hash", req.TxHash),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("VerifyTransaction completed",
			zap.String("service", serviceName),
			zap.String("method", "VerifyTransaction"),
			zap.String("network", resp.Network),
			zap.String("tx_hash", resp.TxHash),
			zap.Bool("found", resp.Found),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.VerifyTransaction(ctx, req)
}

// CancelListener wraps the service method with logging
func (ls *logService) CancelListener(ctx context.Context, req *transfer.CancelListenerRequest) (err error) {
	start := time.Now()

	ls.logger.Info("CancelListener started",
		zap.String("service", serviceName),
		zap.String("method", "CancelListener"),
		zap.String("tx_id", req.TxID),
		zap.String("currency", req.Currency),
		zap.String("destination", req.Destination),
	)

	defer func() {
		if err != nil {
			ls.logger.Error("CancelListener failed",
				zap.String("service", serviceName),
				zap.String("method", "CancelListener"),
				zap.String("tx_id", req.TxID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
	}()

	return ls.svc.CancelListener(ctx, req)
}

// RefundTransfer wraps the service method with logging
func (ls *logService) RefundTransfer(ctx context.Context, txID string) (resp *transfer.RefundResponse, err error) {
	start := time.Now()

	ls.logger.Info("RefundTransfer started",
		zap.String("service", serviceName),
		zap.String("method", "RefundTransfer"),
		zap.String("tx_id", txID),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("RefundTransfer failed",
				zap.String("service", serviceName),
				zap.String("method", "RefundTransfer"),
				zap.String("tx_id", txID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("RefundTransfer completed",
				zap.String("service", serviceName),
				zap.String("method", "RefundTransfer"),
				zap.String("tx_id", txID),
				zap.String("refund_hash", resp.RefundHash),
				zap.String("amount", resp.Amount.String()),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.RefundTransfer(ctx, txID)
}

// truncateString limits string length in bytes for logging and persisted
// reasons. The cut never splits a UTF-8 sequence.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
