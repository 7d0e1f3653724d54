// Package ethtest provides an in-memory ethereum.Gateway for tests.
package ethtest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sent records a transaction submitted through Chain.Send.
type Sent struct {
	Hash common.Hash
	From common.Address
	Req  ethereum.TxRequest
}

// Chain is a single-node ledger. Sends are mined instantly and move native
// and ERC-20 balances; gas is charged as GasLimit * GasPrice.
type Chain struct {
	mu sync.Mutex

	name    string
	chainID int64
	counter uint64

	gasPrice    *big.Int
	gasEstimate uint64

	balances      map[common.Address]*big.Int
	tokenBalances map[[2]common.Address]*big.Int
	history       map[common.Address][]ethereum.Transaction
	txs           map[common.Hash]*ethereum.Transaction
	receipts      map[common.Hash]*types.Receipt
	sent          []Sent

	recentErr error

	// Hooks, all optional.
	SendFunc   func(from common.Address, req ethereum.TxRequest) error
	RevertFunc func(req ethereum.TxRequest) bool
	LogsFunc   func(req ethereum.TxRequest) []*types.Log
}

// NewChain creates an empty ledger with a 1 gwei gas price and 21000 gas estimate.
func NewChain(name string, chainID int64) *Chain {
	return &Chain{
		name:          name,
		chainID:       chainID,
		gasPrice:      big.NewInt(1_000_000_000),
		gasEstimate:   21_000,
		balances:      make(map[common.Address]*big.Int),
		tokenBalances: make(map[[2]common.Address]*big.Int),
		history:       make(map[common.Address][]ethereum.Transaction),
		txs:           make(map[common.Hash]*ethereum.Transaction),
		receipts:      make(map[common.Hash]*types.Receipt),
	}
}

func (c *Chain) SetGasPrice(p *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gasPrice = new(big.Int).Set(p)
}

func (c *Chain) SetGasEstimate(g uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gasEstimate = g
}

// FailRecentTransactions makes history lookups fail with err until called with nil.
func (c *Chain) FailRecentTransactions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentErr = err
}

// Fund credits native balance without recording history.
func (c *Chain) Fund(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(addr, amount)
}

// FundToken credits token balance without recording history.
func (c *Chain) FundToken(token, owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creditToken(token, owner, amount)
}

// Deposit simulates an external native transfer into to and returns its hash.
func (c *Chain) Deposit(from, to common.Address, amount *big.Int) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := c.nextHash()
	tx := ethereum.Transaction{
		Hash:          hash,
		From:          from,
		To:            to,
		Value:         new(big.Int).Set(amount),
		Kind:          ethereum.KindNative,
		TokenDecimals: -1,
		Timestamp:     c.now(),
		BlockNumber:   c.counter,
	}
	c.credit(to, amount)
	c.record(tx)
	return hash
}

// DepositToken simulates an external ERC-20 transfer into to.
func (c *Chain) DepositToken(token, from, to common.Address, amount *big.Int, decimals int) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := c.nextHash()
	tok := token
	tx := ethereum.Transaction{
		Hash:          hash,
		From:          from,
		To:            to,
		Value:         new(big.Int),
		Kind:          ethereum.KindToken,
		Token:         &tok,
		TokenAmount:   new(big.Int).Set(amount),
		TokenDecimals: decimals,
		Timestamp:     c.now(),
		BlockNumber:   c.counter,
	}
	c.creditToken(token, to, amount)
	c.record(tx)
	return hash
}

// Sent returns every transaction submitted so far.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Chain) Name() string   { return c.name }
func (c *Chain) ChainID() int64 { return c.chainID }

func (c *Chain) RecentTransactions(_ context.Context, address common.Address, kind ethereum.TransferKind) ([]ethereum.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recentErr != nil {
		return nil, c.recentErr
	}
	var out []ethereum.Transaction
	all := c.history[address]
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (c *Chain) GetTransaction(_ context.Context, hash common.Hash) (*ethereum.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ethereum.ErrTransactionNotFound, hash.Hex())
	}
	cp := *tx
	return &cp, nil
}

func (c *Chain) EstimateGas(context.Context, ethereum.CallRequest) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gasEstimate, nil
}

func (c *Chain) GasPrice(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *Chain) BalanceAt(_ context.Context, address common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(address), nil
}

func (c *Chain) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.tokenBalances[[2]common.Address{token, owner}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Chain) Send(_ context.Context, signer ethereum.Signer, req ethereum.TxRequest) (common.Hash, error) {
	if _, err := signer.PrivateKey(); err != nil {
		return common.Hash{}, err
	}
	from := signer.Address()
	if c.SendFunc != nil {
		if err := c.SendFunc(from, req); err != nil {
			return common.Hash{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice = c.gasPrice
	}
	gas := req.GasLimit
	if gas == 0 {
		gas = c.gasEstimate
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)

	total := new(big.Int).Add(value, gasCost)
	if c.balance(from).Cmp(total) < 0 {
		return common.Hash{}, fmt.Errorf("insufficient funds for gas * price + value")
	}

	if _, amount, ok := ethereum.DecodeTransfer(req.Data); ok {
		bal, ok := c.tokenBalances[[2]common.Address{req.To, from}]
		if !ok || bal.Cmp(amount) < 0 {
			return common.Hash{}, fmt.Errorf("execution reverted: transfer amount exceeds balance")
		}
	}

	hash := c.nextHash()
	reverted := c.RevertFunc != nil && c.RevertFunc(req)

	c.debit(from, gasCost)
	tx := ethereum.Transaction{
		Hash:          hash,
		From:          from,
		To:            req.To,
		Value:         new(big.Int).Set(value),
		Input:         req.Data,
		Kind:          ethereum.KindNative,
		TokenDecimals: -1,
		Timestamp:     c.now(),
		BlockNumber:   c.counter,
		Failed:        reverted,
	}

	if !reverted {
		if recipient, amount, ok := ethereum.DecodeTransfer(req.Data); ok {
			token := req.To
			bal := c.tokenBalances[[2]common.Address{token, from}]
			bal.Sub(bal, amount)
			c.creditToken(token, recipient, amount)
			tx.Kind = ethereum.KindToken
			tx.Token = &token
			tx.To = recipient
			tx.TokenAmount = new(big.Int).Set(amount)
		}
		c.debit(from, value)
		c.credit(tx.To, value)
	}

	c.record(tx)
	status := types.ReceiptStatusSuccessful
	if reverted {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Status:      status,
		TxHash:      hash,
		GasUsed:     gas,
		BlockNumber: new(big.Int).SetUint64(c.counter),
	}
	if c.LogsFunc != nil && !reverted {
		receipt.Logs = c.LogsFunc(req)
	}
	c.receipts[hash] = receipt
	c.sent = append(c.sent, Sent{Hash: hash, From: from, Req: req})
	return hash, nil
}

func (c *Chain) WaitMined(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("receipt %s not found", hash.Hex())
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return r, fmt.Errorf("%w: %s", ethereum.ErrTransactionReverted, hash.Hex())
	}
	return r, nil
}

// AddReceipt registers a receipt for a hash not produced by Send, such as a
// transaction submitted by a bridge relayer.
func (c *Chain) AddReceipt(hash common.Hash, r *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[hash] = r
}

func (c *Chain) nextHash() common.Hash {
	c.counter++
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", c.name, c.counter)))
}

func (c *Chain) now() time.Time {
	return time.Unix(1_700_000_000+int64(c.counter), 0).UTC()
}

func (c *Chain) record(tx ethereum.Transaction) {
	cp := tx
	c.txs[tx.Hash] = &cp
	c.history[tx.To] = append(c.history[tx.To], tx)
	if tx.From != tx.To {
		c.history[tx.From] = append(c.history[tx.From], tx)
	}
}

func (c *Chain) balance(addr common.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *Chain) credit(addr common.Address, amount *big.Int) {
	b, ok := c.balances[addr]
	if !ok {
		b = new(big.Int)
		c.balances[addr] = b
	}
	b.Add(b, amount)
}

func (c *Chain) debit(addr common.Address, amount *big.Int) {
	b, ok := c.balances[addr]
	if !ok {
		b = new(big.Int)
		c.balances[addr] = b
	}
	b.Sub(b, amount)
}

func (c *Chain) creditToken(token, owner common.Address, amount *big.Int) {
	key := [2]common.Address{token, owner}
	b, ok := c.tokenBalances[key]
	if !ok {
		b = new(big.Int)
		c.tokenBalances[key] = b
	}
	b.Add(b, amount)
}

var _ ethereum.Gateway = (*Chain)(nil)
