package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainsafe/escrow-bridge/pkg/config"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const defaultReceiptPoll = 3 * time.Second

// backend is the subset of *ethclient.Client used by the gateway.
type backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Explorer lists recent activity for an address.
type Explorer interface {
	Transactions(ctx context.Context, address common.Address, kind TransferKind) ([]Transaction, error)
}

// Client is a Gateway backed by a JSON-RPC node and a block explorer
type Client struct {
	name        string
	chainID     *big.Int
	backend     backend
	explorer    Explorer
	maxGasPrice *big.Int
	receiptPoll time.Duration
	logger      *zap.Logger
	closer      func()
}

// NewClient dials the chain's RPC endpoint
func NewClient(name string, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	rpc, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", name, err)
	}

	var explorer Explorer
	if cfg.ExplorerURL != "" {
		explorer = NewExplorerClient(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.ChainID)
	}

	c, err := newClient(name, cfg, rpc, explorer, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closer = rpc.Close

	logger.Info("Connected to chain",
		zap.String("chain", name),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.Bool("explorer", explorer != nil))

	return c, nil
}

func newClient(name string, cfg config.ChainConfig, b backend, explorer Explorer, logger *zap.Logger) (*Client, error) {
	c := &Client{
		name:        name,
		chainID:     big.NewInt(cfg.ChainID),
		backend:     b,
		explorer:    explorer,
		receiptPoll: cfg.ReceiptPoll,
		logger:      logger.With(zap.String("chain", name)),
	}
	if c.receiptPoll <= 0 {
		c.receiptPoll = defaultReceiptPoll
	}
	if cfg.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(cfg.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max_gas_price %q for %s", cfg.MaxGasPrice, name)
		}
		c.maxGasPrice = maxGasPrice
	}
	return c, nil
}

// Close closes the RPC connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) ChainID() int64 { return c.chainID.Int64() }

// RecentTransactions returns explorer history for address, newest first.
func (c *Client) RecentTransactions(ctx context.Context, address common.Address, kind TransferKind) ([]Transaction, error) {
	if c.explorer == nil {
		return nil, fmt.Errorf("no explorer configured for %s", c.name)
	}
	return c.explorer.Transactions(ctx, address, kind)
}

// GetTransaction loads a transaction and, once mined, its receipt status and
// block time. ERC-20 transfer calls are decoded so To holds the token recipient.
func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error) {
	tx, pending, err := c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, geth.NotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, hash.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", hash.Hex(), err)
	}

	out := &Transaction{
		Hash:          hash,
		From:          from,
		Value:         tx.Value(),
		Input:         tx.Data(),
		Kind:          KindNative,
		TokenDecimals: -1,
		Pending:       pending,
	}
	if tx.To() != nil {
		out.To = *tx.To()
	}
	if recipient, amount, ok := DecodeTransfer(tx.Data()); ok && tx.To() != nil {
		token := *tx.To()
		out.Kind = KindToken
		out.Token = &token
		out.To = recipient
		out.TokenAmount = amount
	}
	if pending {
		return out, nil
	}

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
	}
	out.Failed = receipt.Status != types.ReceiptStatusSuccessful
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
		header, err := c.backend.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to get block %s: %w", receipt.BlockNumber, err)
		}
		out.Timestamp = time.Unix(int64(header.Time), 0).UTC()
	}
	return out, nil
}

func (c *Client) EstimateGas(ctx context.Context, call CallRequest) (uint64, error) {
	gas, err := c.backend.EstimateGas(ctx, geth.CallMsg{
		From:  call.From,
		To:    &call.To,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas on %s: %w", c.name, err)
	}
	return gas, nil
}

// GasPrice returns the suggested gas price, capped by max_gas_price when set.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	if c.maxGasPrice != nil && gasPrice.Cmp(c.maxGasPrice) > 0 {
		c.logger.Warn("Suggested gas price exceeds maximum",
			zap.String("suggested", gasPrice.String()),
			zap.String("max", c.maxGasPrice.String()))
		return new(big.Int).Set(c.maxGasPrice), nil
	}
	return gasPrice, nil
}

func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", address.Hex(), err)
	}
	return bal, nil
}

func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, geth.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf on %s: %w", token.Hex(), err)
	}
	return UnpackUint256("balanceOf", out)
}

// Send signs req with signer and broadcasts it. Nonce comes from the pending
// state; missing gas fields are estimated.
func (c *Client) Send(ctx context.Context, signer Signer, req TxRequest) (common.Hash, error) {
	key, err := signer.PrivateKey()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to load signer key: %w", err)
	}
	from := signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		if gasPrice, err = c.GasPrice(ctx); err != nil {
			return common.Hash{}, err
		}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.EstimateGas(ctx, CallRequest{From: from, To: req.To, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction sent",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", req.To.Hex()),
		zap.String("value", value.String()),
		zap.Uint64("gas", gasLimit))

	return signed.Hash(), nil
}

// WaitMined blocks until hash has a receipt. A reverted receipt is returned
// together with ErrTransactionReverted.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		case errors.Is(err, geth.NotFound):
		default:
			c.logger.Debug("Receipt lookup failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
