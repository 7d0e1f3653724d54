package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/escrow-bridge/internal/metrics"
	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	Resumed     int
	Interrupted int
	Refunding   int
}

// Recover reconciles transfers left unfinished by a previous process.
//
// Waiting transfers resume listening in the background under ctx. In-flight
// transfers cannot be resubmitted safely and move to failed. Refunding
// transfers are only reported.
func (s *Orchestrator) Recover(ctx context.Context) (*RecoveryReport, error) {
	pending, err := s.Store.ListTransfers(ctx,
		transfer.StatusWaiting,
		transfer.StatusOrderCreated,
		transfer.StatusOasisClaim,
		transfer.StatusCrossChainClaim,
		transfer.StatusReceiverRouting,
		transfer.StatusRefunding,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished transfers: %w", err)
	}

	report := &RecoveryReport{}
	for _, t := range pending {
		switch {
		case t.Status == transfer.StatusWaiting:
			p, err := s.planFor(t)
			if err != nil {
				s.logger.Error("Cannot resume transfer", zap.String("tx_id", t.TxID), zap.Error(err))
				s.fail(ctx, t, transfer.StatusWaiting, "cannot resume: "+err.Error())
				continue
			}
			report.Resumed++
			s.background.Add(1)
			go func() {
				defer s.background.Done()
				if _, err := s.run(ctx, t, p); err != nil {
					s.logger.Warn("Resumed transfer did not complete", zap.String("tx_id", t.TxID), zap.Error(err))
				}
			}()

		case t.Status.InFlight():
			report.Interrupted++
			s.logger.Warn("Failing transfer interrupted mid-flight",
				zap.String("tx_id", t.TxID),
				zap.String("status", string(t.Status)))
			s.fail(ctx, t, t.Status, reasonRestart)

		case t.Status == transfer.StatusRefunding:
			report.Refunding++
			s.logger.Warn("Transfer left in refunding, operator action required",
				zap.String("tx_id", t.TxID),
				zap.String("payin_address", t.PayinAddress))
		}
	}

	s.logger.Info("Transfer recovery finished",
		zap.Int("resumed", report.Resumed),
		zap.Int("interrupted", report.Interrupted),
		zap.Int("refunding", report.Refunding))
	return report, nil
}

// Wait blocks until every transfer resumed by Recover has returned.
func (s *Orchestrator) Wait() {
	s.background.Wait()
}

// Monitor publishes per-status ledger counts every interval until ctx is done.
func (s *Orchestrator) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.publishCounts(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Orchestrator) publishCounts(ctx context.Context) {
	counts, err := s.Store.CountByStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.ErrorsTotal.WithLabelValues("monitor", "count").Inc()
			s.logger.Warn("Failed to count transfers", zap.Error(err))
		}
		return
	}
	for _, st := range transfer.AllStatuses {
		metrics.TransfersByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
