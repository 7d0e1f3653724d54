// Package listener detects a qualifying deposit to an escrow address by
// polling the chain gateway's transaction history.
package listener

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/chainsafe/escrow-bridge/internal/metrics"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDepositTimeout is returned when no qualifying deposit arrived in time.
	ErrDepositTimeout = errors.New("deposit not detected before timeout")
	// ErrListenerActive is returned when a listener already holds the key.
	ErrListenerActive = errors.New("listener already active")
	// ErrListenerCancelled is returned when the listener was cancelled explicitly.
	ErrListenerCancelled = errors.New("listener cancelled")
)

// Watch describes what to look for.
type Watch struct {
	TxID     string
	Currency string
	Address  common.Address
	// Token is nil for the chain's native coin.
	Token    *common.Address
	Decimals int32
	// Minimum is the smallest qualifying amount in base units.
	Minimum *big.Int
	Gateway ethereum.Gateway
}

// Deposit is a detected qualifying payment.
type Deposit struct {
	TxHash common.Hash
	Sender common.Address
	Amount *big.Int
}

// Listener runs one polling loop per watched key.
type Listener struct {
	registry     *Registry
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// New creates a listener sharing registry.
func New(registry *Registry, pollInterval, timeout time.Duration, logger *zap.Logger) *Listener {
	return &Listener{
		registry:     registry,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       logger,
	}
}

// Await polls immediately and then every poll interval until a deposit of at
// least w.Minimum reaches w.Address, the timeout elapses, or the listener is
// cancelled. Gateway errors are logged and retried on the next tick. The
// registry key is released only after any in-flight fetch has returned.
func (l *Listener) Await(ctx context.Context, w Watch) (*Deposit, error) {
	key := Key(w.TxID, w.Currency, w.Address)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	ctx, stop := context.WithTimeoutCause(ctx, l.timeout, ErrDepositTimeout)
	defer stop()

	e, ok := l.registry.tryAcquire(key, cancel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListenerActive, key)
	}
	defer l.registry.release(key, e)

	logger := l.logger.With(
		zap.String("tx_id", w.TxID),
		zap.String("currency", w.Currency),
		zap.String("address", w.Address.Hex()),
		zap.String("chain", w.Gateway.Name()))
	logger.Info("Listening for deposit",
		zap.String("minimum", w.Minimum.String()),
		zap.Duration("timeout", l.timeout))

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		dep, err := l.poll(ctx, w)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("listener", "poll").Inc()
			logger.Warn("Deposit poll failed", zap.Error(err))
		}
		if dep != nil {
			metrics.DepositsDetected.WithLabelValues(w.Gateway.Name(), w.Currency).Inc()
			logger.Info("Deposit detected",
				zap.String("tx_hash", dep.TxHash.Hex()),
				zap.String("sender", dep.Sender.Hex()),
				zap.String("amount", dep.Amount.String()))
			return dep, nil
		}

		select {
		case <-ctx.Done():
			cause := context.Cause(ctx)
			if errors.Is(cause, ErrDepositTimeout) || errors.Is(cause, ErrListenerCancelled) {
				logger.Info("Listener stopped", zap.Error(cause))
				return nil, cause
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel stops the listener for (txID, currency, destination); no-op if none.
func (l *Listener) Cancel(ctx context.Context, txID, currency string, destination common.Address) error {
	return l.registry.Cancel(ctx, Key(txID, currency, destination))
}

func (l *Listener) poll(ctx context.Context, w Watch) (*Deposit, error) {
	metrics.ListenerPolls.WithLabelValues(w.Gateway.Name()).Inc()

	var native, tokens []ethereum.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = w.Gateway.RecentTransactions(gctx, w.Address, ethereum.KindNative)
		return err
	})
	if w.Token != nil {
		g.Go(func() error {
			var err error
			tokens, err = w.Gateway.RecentTransactions(gctx, w.Address, ethereum.KindToken)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]ethereum.Transaction, 0, len(native)+len(tokens))
	candidates = append(candidates, native...)
	candidates = append(candidates, tokens...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})

	for _, tx := range candidates {
		amount, ok := DecodeAmount(tx, w)
		if !ok {
			continue
		}
		if amount.Cmp(w.Minimum) >= 0 {
			return &Deposit{TxHash: tx.Hash, Sender: tx.From, Amount: amount}, nil
		}
	}
	return nil, nil
}

// DecodeAmount returns the amount tx moved into the watched address in the
// watched asset. Token transfers prefer the decoded call data and fall back
// to the explorer-reported amount.
func DecodeAmount(tx ethereum.Transaction, w Watch) (*big.Int, bool) {
	if tx.Failed || tx.Pending {
		return nil, false
	}

	if w.Token == nil {
		if tx.Kind != ethereum.KindNative || tx.To != w.Address || tx.Value == nil {
			return nil, false
		}
		return tx.Value, true
	}

	if tx.Kind != ethereum.KindToken || tx.Token == nil || *tx.Token != *w.Token {
		return nil, false
	}
	if tx.TokenDecimals >= 0 && int32(tx.TokenDecimals) != w.Decimals {
		return nil, false
	}
	if to, amount, ok := ethereum.DecodeTransfer(tx.Input); ok {
		if to != w.Address {
			return nil, false
		}
		return amount, true
	}
	if tx.To != w.Address || tx.TokenAmount == nil {
		return nil, false
	}
	return tx.TokenAmount, true
}
