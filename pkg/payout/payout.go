// Package payout sends funds out of an escrow wallet after checking the
// wallet can afford the transfer and its gas.
package payout

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/chainsafe/escrow-bridge/internal/metrics"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrInsufficientBalance is returned when the wallet cannot cover amount plus gas.
var ErrInsufficientBalance = errors.New("insufficient balance for amount and gas")

// Request describes one outgoing transfer.
type Request struct {
	Gateway   ethereum.Gateway
	Signer    ethereum.Signer
	To        common.Address
	Amount    *big.Int
	Token     *common.Address // nil for the native coin
	Operation string          // metrics label, e.g. "payout", "platform_fee", "refund"
}

// Result is a confirmed transfer.
type Result struct {
	TxHash  common.Hash
	GasUsed uint64
	GasCost *big.Int
}

// Executor sends payouts.
type Executor struct {
	logger *zap.Logger
}

func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute estimates gas, checks balances, submits and waits for one confirmation.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("payout amount must be positive")
	}
	gw := req.Gateway
	from := req.Signer.Address()

	tx, err := buildTx(req)
	if err != nil {
		return nil, err
	}

	gas, err := gw.EstimateGas(ctx, ethereum.CallRequest{From: from, To: tx.To, Value: tx.Value, Data: tx.Data})
	if err != nil {
		return nil, err
	}
	gasPrice, err := gw.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)

	native, err := gw.BalanceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	if req.Token == nil {
		need := new(big.Int).Add(req.Amount, gasCost)
		if native.Cmp(need) < 0 {
			return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, native, need)
		}
	} else {
		tokenBal, err := gw.TokenBalance(ctx, *req.Token, from)
		if err != nil {
			return nil, err
		}
		if tokenBal.Cmp(req.Amount) < 0 {
			return nil, fmt.Errorf("%w: token balance %s, need %s", ErrInsufficientBalance, tokenBal, req.Amount)
		}
		if native.Cmp(gasCost) < 0 {
			return nil, fmt.Errorf("%w: gas balance %s, need %s", ErrInsufficientBalance, native, gasCost)
		}
	}

	tx.GasLimit = gas
	tx.GasPrice = gasPrice
	hash, err := gw.Send(ctx, req.Signer, tx)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(gw.Name(), req.Operation, "error").Inc()
		return nil, err
	}
	receipt, err := gw.WaitMined(ctx, hash)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(gw.Name(), req.Operation, "error").Inc()
		return nil, err
	}
	metrics.TransactionsSent.WithLabelValues(gw.Name(), req.Operation, "success").Inc()
	metrics.GasUsed.WithLabelValues(req.Operation).Observe(float64(receipt.GasUsed))

	e.logger.Info("Payout confirmed",
		zap.String("operation", req.Operation),
		zap.String("chain", gw.Name()),
		zap.String("tx_hash", hash.Hex()),
		zap.String("to", req.To.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.Uint64("gas_used", receipt.GasUsed))

	return &Result{
		TxHash:  hash,
		GasUsed: receipt.GasUsed,
		GasCost: new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice),
	}, nil
}

// MaxSendable returns the largest amount the signer can send: the full token
// balance, or the native balance minus the gas for a plain transfer. It
// returns zero rather than a negative amount.
func (e *Executor) MaxSendable(ctx context.Context, gw ethereum.Gateway, owner common.Address, token *common.Address) (*big.Int, error) {
	if token != nil {
		return gw.TokenBalance(ctx, *token, owner)
	}

	bal, err := gw.BalanceAt(ctx, owner)
	if err != nil {
		return nil, err
	}
	gas, err := gw.EstimateGas(ctx, ethereum.CallRequest{From: owner, To: owner, Value: bal})
	if err != nil {
		return nil, err
	}
	gasPrice, err := gw.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Sub(bal, new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice))
	if out.Sign() < 0 {
		return new(big.Int), nil
	}
	return out, nil
}

func buildTx(req Request) (ethereum.TxRequest, error) {
	if req.Token == nil {
		return ethereum.TxRequest{To: req.To, Value: new(big.Int).Set(req.Amount)}, nil
	}
	data, err := ethereum.PackTransfer(req.To, req.Amount)
	if err != nil {
		return ethereum.TxRequest{}, fmt.Errorf("pack transfer: %w", err)
	}
	return ethereum.TxRequest{To: *req.Token, Value: new(big.Int), Data: data}, nil
}
