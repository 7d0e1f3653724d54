// Package bridge defines the protocol-neutral view of a cross-chain hop:
// quotes, deposit descriptors, progress reports and the Strategy that
// executes a hop end to end.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Protocol names a bridge implementation.
type Protocol string

const (
	ProtocolAcross   Protocol = "across"
	ProtocolWormhole Protocol = "wormhole"
)

var (
	// ErrAmountTooLow is returned when the bridge refuses the amount.
	ErrAmountTooLow = errors.New("amount too low for bridge")
	// ErrRouteUnsupported is returned for a route the bridge cannot serve.
	ErrRouteUnsupported = errors.New("route not supported by bridge")
	// ErrHopFailed is returned when the destination side of a hop did not complete.
	ErrHopFailed = errors.New("bridge hop failed")
	// ErrHopTimeout is returned when a fill or attestation did not arrive in time.
	ErrHopTimeout = errors.New("bridge hop timed out")
)

// Route identifies a token movement between two chains. For native assets
// InputToken and OutputToken are the wrapped-native contracts.
type Route struct {
	OriginChainID      int64
	DestinationChainID int64
	InputToken         common.Address
	OutputToken        common.Address
	IsNative           bool
	Decimals           int32
}

func (r Route) String() string {
	return fmt.Sprintf("%d->%d %s", r.OriginChainID, r.DestinationChainID, r.InputToken.Hex())
}

// Fees is the relayer fee schedule of a quote. RelayerFeePct is scaled by 1e18.
type Fees struct {
	RelayerFeePct   *big.Int
	RelayerFeeTotal *big.Int
}

// Deposit is an executable deposit descriptor returned with a quote.
type Deposit struct {
	Route               Route
	Recipient           common.Address
	InputAmount         *big.Int
	OutputAmount        *big.Int
	SpokePool           common.Address
	ExclusiveRelayer    common.Address
	QuoteTimestamp      uint32
	FillDeadline        uint32
	ExclusivityDeadline uint32
}

// Quote is a bridge price quote for one route and amount.
type Quote struct {
	Deposit        Deposit
	Fees           Fees
	IsAmountTooLow bool
}

// Step is a discrete sub-step of hop execution.
type Step string

const (
	StepApprove Step = "approve"
	StepDeposit Step = "deposit"
	StepAttest  Step = "attest"
	StepFill    Step = "fill"
)

// ProgressStatus reports the outcome of a Step.
type ProgressStatus string

const (
	StatusTxPending ProgressStatus = "txPending"
	StatusTxSuccess ProgressStatus = "txSuccess"
	StatusTxError   ProgressStatus = "txError"
	StatusError     ProgressStatus = "error"
)

// Progress is emitted for every sub-step transition.
type Progress struct {
	Step   Step
	Status ProgressStatus
	TxHash common.Hash
	Err    error
}

// HopRequest carries everything a strategy needs to execute one quote.
// Signer funds the source-side transactions on Origin.
type HopRequest struct {
	Quote       *Quote
	Signer      ethereum.Signer
	Origin      ethereum.Gateway
	Destination ethereum.Gateway
	OnProgress  func(Progress)
}

// Report forwards a progress event to the request's callback, if any.
func (r HopRequest) Report(step Step, status ProgressStatus, hash common.Hash, err error) {
	if r.OnProgress != nil {
		r.OnProgress(Progress{Step: step, Status: status, TxHash: hash, Err: err})
	}
}

// HopResult is the outcome of a completed hop.
type HopResult struct {
	SourceTxHash      common.Hash
	DestinationTxHash common.Hash
	OutputAmount      *big.Int
}

// SubmittedFunc is called once the source-side transaction is confirmed,
// before the strategy waits on the destination side.
type SubmittedFunc func(ctx context.Context, sourceTxHash common.Hash) error

// Strategy executes one bridge protocol.
type Strategy interface {
	Protocol() Protocol
	Quote(ctx context.Context, route Route, amount *big.Int, recipient common.Address) (*Quote, error)
	Submit(ctx context.Context, req HopRequest, onSubmitted SubmittedFunc) (*HopResult, error)
}

type setKey struct {
	protocol Protocol
	testnet  bool
}

// Set resolves the strategy for a protocol on mainnet or testnet.
type Set struct {
	strategies map[setKey]Strategy
}

func NewSet() *Set {
	return &Set{strategies: make(map[setKey]Strategy)}
}

// Register adds s for the given network class, replacing any previous one.
func (s *Set) Register(testnet bool, strategy Strategy) *Set {
	s.strategies[setKey{strategy.Protocol(), testnet}] = strategy
	return s
}

// Get returns the strategy registered for protocol on the network class.
func (s *Set) Get(protocol Protocol, testnet bool) (Strategy, error) {
	strategy, ok := s.strategies[setKey{protocol, testnet}]
	if !ok {
		return nil, fmt.Errorf("%w: no %s strategy for testnet=%t", ErrRouteUnsupported, protocol, testnet)
	}
	return strategy, nil
}
