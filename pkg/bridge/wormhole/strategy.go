package wormhole

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/chainsafe/escrow-bridge/pkg/bridge"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// The token bridge carries at most 8 decimals; finer precision stays on the source wallet.
const maxDecimals = 8

const tokenBridgeABIJSON = `[
	{"type":"function","name":"wrapAndTransferETH","stateMutability":"payable","inputs":[
		{"name":"recipientChain","type":"uint16"},{"name":"recipient","type":"bytes32"},
		{"name":"arbiterFee","type":"uint256"},{"name":"nonce","type":"uint32"}],"outputs":[{"name":"sequence","type":"uint64"}]},
	{"type":"function","name":"transferTokens","stateMutability":"payable","inputs":[
		{"name":"token","type":"address"},{"name":"amount","type":"uint256"},
		{"name":"recipientChain","type":"uint16"},{"name":"recipient","type":"bytes32"},
		{"name":"arbiterFee","type":"uint256"},{"name":"nonce","type":"uint32"}],"outputs":[{"name":"sequence","type":"uint64"}]},
	{"type":"function","name":"completeTransfer","stateMutability":"nonpayable","inputs":[{"name":"encodedVm","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"completeTransferAndUnwrapETH","stateMutability":"nonpayable","inputs":[{"name":"encodedVm","type":"bytes"}],"outputs":[]}
]`

const coreBridgeABIJSON = `[
	{"type":"event","name":"LogMessagePublished","anonymous":false,"inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"sequence","type":"uint64"},
		{"indexed":false,"name":"nonce","type":"uint32"},
		{"indexed":false,"name":"payload","type":"bytes"},
		{"indexed":false,"name":"consistencyLevel","type":"uint8"}]}
]`

var (
	tokenBridgeABI = mustABI(tokenBridgeABIJSON)
	coreBridgeABI  = mustABI(coreBridgeABIJSON)

	// ErrNoSequence is returned when a transfer receipt has no core bridge message.
	ErrNoSequence = errors.New("no LogMessagePublished in receipt")
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Endpoint is the Wormhole deployment on one EVM chain.
type Endpoint struct {
	WormholeChainID uint16
	TokenBridge     common.Address
	CoreBridge      common.Address
}

// Options tunes attestation polling.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Strategy is the two-phase attested bridge. Redeem transactions are
// signed by redeemer, since the receiving escrow wallet holds no gas yet.
type Strategy struct {
	client    *Client
	endpoints map[int64]Endpoint
	redeemer  ethereum.Signer
	opts      Options
	logger    *zap.Logger
}

// NewStrategy creates a Wormhole strategy. endpoints is keyed by EVM chain ID.
func NewStrategy(client *Client, endpoints map[int64]Endpoint, redeemer ethereum.Signer, opts Options, logger *zap.Logger) *Strategy {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 40 * time.Minute
	}
	return &Strategy{
		client:    client,
		endpoints: endpoints,
		redeemer:  redeemer,
		opts:      opts,
		logger:    logger.With(zap.String("bridge", string(bridge.ProtocolWormhole))),
	}
}

func (s *Strategy) Protocol() bridge.Protocol { return bridge.ProtocolWormhole }

// Quote checks the route is served and truncates amount to the bridge's
// precision. The token bridge charges no relayer fee.
func (s *Strategy) Quote(_ context.Context, route bridge.Route, amount *big.Int, recipient common.Address) (*bridge.Quote, error) {
	src, dst, err := s.route(route)
	if err != nil {
		return nil, err
	}

	bridged := Truncate(amount, route.Decimals)
	s.logger.Debug("Quoted transfer",
		zap.Uint16("from", src.WormholeChainID),
		zap.Uint16("to", dst.WormholeChainID),
		zap.String("amount", bridged.String()))

	return &bridge.Quote{
		Deposit: bridge.Deposit{
			Route:        route,
			Recipient:    recipient,
			InputAmount:  bridged,
			OutputAmount: new(big.Int).Set(bridged),
			SpokePool:    src.TokenBridge,
		},
		Fees: bridge.Fees{
			RelayerFeePct:   new(big.Int),
			RelayerFeeTotal: new(big.Int),
		},
		IsAmountTooLow: bridged.Sign() == 0,
	}, nil
}

// Submit transfers on the source chain, waits for the signed VAA and
// redeems it on the destination chain.
func (s *Strategy) Submit(ctx context.Context, req bridge.HopRequest, onSubmitted bridge.SubmittedFunc) (*bridge.HopResult, error) {
	if req.Quote == nil {
		return nil, errors.New("wormhole: quote is required")
	}
	if req.Destination == nil {
		return nil, errors.New("wormhole: destination gateway is required")
	}
	dep := req.Quote.Deposit
	src, dst, err := s.route(dep.Route)
	if err != nil {
		return nil, err
	}

	data, value, err := s.packTransfer(dep, dst.WormholeChainID)
	if err != nil {
		return nil, err
	}
	if !dep.Route.IsNative {
		if _, err := bridge.Approve(ctx, req, dep.Route.InputToken, src.TokenBridge, dep.InputAmount); err != nil {
			return nil, err
		}
	}

	sourceHash, receipt, err := bridge.SendAndWait(ctx, req, req.Origin, req.Signer, bridge.StepDeposit,
		ethereum.TxRequest{To: src.TokenBridge, Value: value, Data: data})
	if err != nil {
		return nil, err
	}
	sequence, err := ParseSequence(receipt, src.CoreBridge)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Transfer published",
		zap.String("tx_hash", sourceHash.Hex()),
		zap.Uint64("sequence", sequence))

	if onSubmitted != nil {
		if err := onSubmitted(ctx, sourceHash); err != nil {
			return nil, err
		}
	}

	vaa, err := s.awaitVAA(ctx, req, src, sequence)
	if err != nil {
		return nil, err
	}

	method := "completeTransfer"
	if dep.Route.IsNative {
		method = "completeTransferAndUnwrapETH"
	}
	redeemData, err := tokenBridgeABI.Pack(method, vaa)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	redeemHash, _, err := bridge.SendAndWait(ctx, req, req.Destination, s.redeemer, bridge.StepFill,
		ethereum.TxRequest{To: dst.TokenBridge, Data: redeemData})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrHopFailed, err)
	}

	return &bridge.HopResult{
		SourceTxHash:      sourceHash,
		DestinationTxHash: redeemHash,
		OutputAmount:      new(big.Int).Set(dep.OutputAmount),
	}, nil
}

func (s *Strategy) packTransfer(dep bridge.Deposit, recipientChain uint16) ([]byte, *big.Int, error) {
	recipient := ethereum.AddressToBytes32(dep.Recipient)
	nonce := uint32(time.Now().Unix())

	if dep.Route.IsNative {
		data, err := tokenBridgeABI.Pack("wrapAndTransferETH", recipientChain, recipient, new(big.Int), nonce)
		if err != nil {
			return nil, nil, fmt.Errorf("pack wrapAndTransferETH: %w", err)
		}
		return data, dep.InputAmount, nil
	}
	data, err := tokenBridgeABI.Pack("transferTokens", dep.Route.InputToken, dep.InputAmount,
		recipientChain, recipient, new(big.Int), nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("pack transferTokens: %w", err)
	}
	return data, nil, nil
}

func (s *Strategy) awaitVAA(ctx context.Context, req bridge.HopRequest, src Endpoint, sequence uint64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	req.Report(bridge.StepAttest, bridge.StatusTxPending, common.Hash{}, nil)
	for {
		vaa, err := s.client.SignedVAA(ctx, src.WormholeChainID, src.TokenBridge, sequence)
		if err == nil {
			req.Report(bridge.StepAttest, bridge.StatusTxSuccess, common.Hash{}, nil)
			return vaa, nil
		}
		if !errors.Is(err, ErrVAANotFound) {
			s.logger.Warn("VAA lookup failed", zap.Uint64("sequence", sequence), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err := fmt.Errorf("%w: no attestation for sequence %d", bridge.ErrHopTimeout, sequence)
				req.Report(bridge.StepAttest, bridge.StatusError, common.Hash{}, err)
				return nil, err
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Strategy) route(r bridge.Route) (Endpoint, Endpoint, error) {
	src, ok := s.endpoints[r.OriginChainID]
	if !ok || src.TokenBridge == (common.Address{}) {
		return Endpoint{}, Endpoint{}, fmt.Errorf("%w: wormhole not configured on chain %d", bridge.ErrRouteUnsupported, r.OriginChainID)
	}
	dst, ok := s.endpoints[r.DestinationChainID]
	if !ok || dst.TokenBridge == (common.Address{}) {
		return Endpoint{}, Endpoint{}, fmt.Errorf("%w: wormhole not configured on chain %d", bridge.ErrRouteUnsupported, r.DestinationChainID)
	}
	return src, dst, nil
}

// ParseSequence extracts the message sequence the core bridge assigned to a transfer.
func ParseSequence(receipt *types.Receipt, coreBridge common.Address) (uint64, error) {
	event := coreBridgeABI.Events["LogMessagePublished"]
	for _, l := range receipt.Logs {
		if l.Address != coreBridge || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return 0, fmt.Errorf("unpack LogMessagePublished: %w", err)
		}
		seq, ok := values[0].(uint64)
		if !ok {
			return 0, fmt.Errorf("unexpected sequence type %T", values[0])
		}
		return seq, nil
	}
	return 0, ErrNoSequence
}

// Truncate drops precision beyond 8 decimals so the bridged amount is exact.
func Truncate(amount *big.Int, decimals int32) *big.Int {
	if decimals <= maxDecimals {
		return new(big.Int).Set(amount)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-maxDecimals)), nil)
	out := new(big.Int).Quo(amount, factor)
	return out.Mul(out, factor)
}

var _ bridge.Strategy = (*Strategy)(nil)
