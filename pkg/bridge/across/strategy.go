package across

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
	"go.uber.org/zap"
)

const spokePoolABIJSON = `[
	{"type":"function","name":"depositV3","stateMutability":"payable","inputs":[
		{"name":"depositor","type":"address"},
		{"name":"recipient","type":"address"},
		{"name":"inputToken","type":"address"},
		{"name":"outputToken","type":"address"},
		{"name":"inputAmount","type":"uint256"},
		{"name":"outputAmount","type":"uint256"},
		{"name":"destinationChainId","type":"uint256"},
		{"name":"exclusiveRelayer","type":"address"},
		{"name":"quoteTimestamp","type":"uint32"},
		{"name":"fillDeadline","type":"uint32"},
		{"name":"exclusivityDeadline","type":"uint32"},
		{"name":"message","type":"bytes"}
	],"outputs":[]}
]`

var spokePoolABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(spokePoolABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Options tunes fill tracking.
type Options struct {
	FillPollInterval time.Duration
	FillTimeout      time.Duration
}

// Strategy is the single relayer-fill bridge.
type Strategy struct {
	client *Client
	opts   Options
	logger *zap.Logger
}

// NewStrategy creates an Across strategy over client.
func NewStrategy(client *Client, opts Options, logger *zap.Logger) *Strategy {
	if opts.FillPollInterval <= 0 {
		opts.FillPollInterval = 10 * time.Second
	}
	if opts.FillTimeout <= 0 {
		opts.FillTimeout = 30 * time.Minute
	}
	return &Strategy{client: client, opts: opts, logger: logger.With(zap.String("bridge", string(bridge.ProtocolAcross)))}
}

func (s *Strategy) Protocol() bridge.Protocol { return bridge.ProtocolAcross }

func (s *Strategy) Quote(ctx context.Context, route bridge.Route, amount *big.Int, recipient common.Address) (*bridge.Quote, error) {
	return s.client.SuggestedFees(ctx, route, amount, recipient)
}

// Submit approves the SpokePool for token routes, deposits, then waits for
// a relayer fill on the destination chain.
func (s *Strategy) Submit(ctx context.Context, req bridge.HopRequest, onSubmitted bridge.SubmittedFunc) (*bridge.HopResult, error) {
	if req.Quote == nil {
		return nil, errors.New("across: quote is required")
	}
	dep := req.Quote.Deposit
	depositor := req.Signer.Address()

	if !dep.Route.IsNative {
		if _, err := bridge.Approve(ctx, req, dep.Route.InputToken, dep.SpokePool, dep.InputAmount); err != nil {
			return nil, err
		}
	}

	data, err := PackDepositV3(dep, depositor)
	if err != nil {
		return nil, err
	}
	tx := ethereum.TxRequest{To: dep.SpokePool, Data: data}
	if dep.Route.IsNative {
		tx.Value = dep.InputAmount
	}

	depositHash, _, err := bridge.SendAndWait(ctx, req, req.Origin, req.Signer, bridge.StepDeposit, tx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Deposit confirmed",
		zap.String("tx_hash", depositHash.Hex()),
		zap.String("route", dep.Route.String()),
		zap.String("input_amount", dep.InputAmount.String()))

	if onSubmitted != nil {
		if err := onSubmitted(ctx, depositHash); err != nil {
			return nil, err
		}
	}

	fillHash, err := s.awaitFill(ctx, req, dep.Route.OriginChainID, depositHash)
	if err != nil {
		return nil, err
	}

	return &bridge.HopResult{
		SourceTxHash:      depositHash,
		DestinationTxHash: fillHash,
		OutputAmount:      new(big.Int).Set(dep.OutputAmount),
	}, nil
}

func (s *Strategy) awaitFill(ctx context.Context, req bridge.HopRequest, originChainID int64, depositHash common.Hash) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FillTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.FillPollInterval)
	defer ticker.Stop()

	for {
		status, fillTx, err := s.client.DepositStatus(ctx, originChainID, depositHash)
		switch {
		case err != nil:
			s.logger.Warn("Deposit status lookup failed", zap.String("deposit_tx", depositHash.Hex()), zap.Error(err))
		case status == DepositFilled:
			if req.Destination != nil && fillTx != (common.Hash{}) {
				if _, err := req.Destination.WaitMined(ctx, fillTx); err != nil {
					req.Report(bridge.StepFill, bridge.StatusTxError, fillTx, err)
					return common.Hash{}, fmt.Errorf("%w: fill %s: %v", bridge.ErrHopFailed, fillTx.Hex(), err)
				}
			}
			req.Report(bridge.StepFill, bridge.StatusTxSuccess, fillTx, nil)
			return fillTx, nil
		case status == DepositExpired || status == DepositRefunded:
			err := fmt.Errorf("%w: deposit %s %s", bridge.ErrHopFailed, depositHash.Hex(), status)
			req.Report(bridge.StepFill, bridge.StatusError, common.Hash{}, err)
			return common.Hash{}, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err := fmt.Errorf("%w: no fill for deposit %s", bridge.ErrHopTimeout, depositHash.Hex())
				req.Report(bridge.StepFill, bridge.StatusError, common.Hash{}, err)
				return common.Hash{}, err
			}
			return common.Hash{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PackDepositV3 encodes the SpokePool deposit for dep.
func PackDepositV3(dep bridge.Deposit, depositor common.Address) ([]byte, error) {
	recipient := dep.Recipient
	if recipient == (common.Address{}) {
		return nil, errors.New("across: deposit recipient is required")
	}
	data, err := spokePoolABI.Pack("depositV3",
		depositor,
		recipient,
		dep.Route.InputToken,
		dep.Route.OutputToken,
		dep.InputAmount,
		dep.OutputAmount,
		big.NewInt(dep.Route.DestinationChainID),
		dep.ExclusiveRelayer,
		dep.QuoteTimestamp,
		dep.FillDeadline,
		dep.ExclusivityDeadline,
		[]byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("pack depositV3: %w", err)
	}
	return data, nil
}

var _ bridge.Strategy = (*Strategy)(nil)
