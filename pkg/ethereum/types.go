package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferKind selects which history an explorer lookup returns.
type TransferKind string

const (
	// KindNative lists plain value transactions involving an address.
	KindNative TransferKind = "native"
	// KindToken lists ERC-20 transfer events involving an address.
	KindToken TransferKind = "token"
)

var (
	// ErrTransactionReverted is returned when a mined transaction has a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrUnknownChain is returned by the registry for an unconfigured network.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrTransactionNotFound is returned by GetTransaction for an unknown hash.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction is the normalized view of a transfer seen on chain or by an explorer.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          common.Address
	Value       *big.Int
	Input       []byte
	Kind        TransferKind
	Token       *common.Address // contract for token transfers
	TokenAmount *big.Int
	// TokenDecimals is -1 when the explorer did not report it.
	TokenDecimals int
	Timestamp     time.Time
	BlockNumber   uint64
	Failed        bool
	Pending       bool
}

// TxRequest describes a transaction to sign and submit. Zero GasLimit or nil
// GasPrice are filled in by the gateway.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// CallRequest describes a call used for gas estimation.
type CallRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Signer exposes a signing key only for the duration of a submission.
type Signer interface {
	Address() common.Address
	PrivateKey() (*ecdsa.PrivateKey, error)
}

// Gateway is read/write access to one EVM network.
type Gateway interface {
	Name() string
	ChainID() int64
	RecentTransactions(ctx context.Context, address common.Address, kind TransferKind) ([]Transaction, error)
	GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error)
	EstimateGas(ctx context.Context, call CallRequest) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Send(ctx context.Context, signer Signer, req TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// KeySigner adapts a raw key to Signer, for operator-held keys.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner wraps key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

// Address returns the key's account.
func (s *KeySigner) Address() common.Address {
	return pubkeyAddress(s.key)
}

// PrivateKey returns the wrapped key.
func (s *KeySigner) PrivateKey() (*ecdsa.PrivateKey, error) {
	if s.key == nil {
		return nil, errors.New("signer has no key")
	}
	return s.key, nil
}
