package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/escrow-bridge/internal/metrics"
	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	"github.com/chainsafe/escrow-bridge/pkg/bridge"
	"github.com/chainsafe/escrow-bridge/pkg/config"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/chainsafe/escrow-bridge/pkg/fees"
	"github.com/chainsafe/escrow-bridge/pkg/listener"
	"github.com/chainsafe/escrow-bridge/pkg/payout"
	"github.com/chainsafe/escrow-bridge/pkg/transfer"
	"github.com/chainsafe/escrow-bridge/pkg/transferstore"
	"github.com/chainsafe/escrow-bridge/pkg/vault"
)

const (
	// failureReasonMaxLen bounds the persisted failure reason.
	failureReasonMaxLen = 200

	// ledgerWriteTimeout bounds failure writes made after the caller's context is gone.
	ledgerWriteTimeout = 10 * time.Second

	reasonDepositTimeout    = "insufficient amount: no qualifying deposit before timeout"
	reasonListenerCancelled = "deposit listener cancelled"
	reasonRestart           = "interrupted by restart"

	msgTransferFailed = "transfer failed, try again"
)

var (
	ErrAlreadyStarted  = errors.New("transfer already started")
	ErrNotRefundable   = errors.New("transfer is not refundable")
	ErrNothingToRefund = errors.New("escrow wallet holds nothing to refund")
	ErrBelowMinimum    = errors.New("amount below asset minimum")
	ErrFeesExceedInput = errors.New("deposit does not cover platform fee and gas buffer")
)

// Store is the narrow ledger interface the orchestrator needs.
// Defined here to keep the orchestrator decoupled from the bun implementation.
type Store interface {
	CreateTransfer(ctx context.Context, t *transfer.Transfer) error
	GetTransfer(ctx context.Context, txID string, opts ...transferstore.QueryOption) (*transfer.Transfer, error)
	UpdateTransfer(ctx context.Context, txID string, from transfer.Status, upd transfer.Update) error
	ListTransfers(ctx context.Context, statuses ...transfer.Status) ([]*transfer.Transfer, error)
	CountByStatus(ctx context.Context) (map[transfer.Status]int, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Chains resolves a configured network by name.
type Chains interface {
	Get(name string) (ethereum.Gateway, error)
}

// Assets resolves a ticker to its catalog entry.
type Assets interface {
	Lookup(ticker string) (*config.Asset, error)
}

// Strategies resolves the bridge strategy for a protocol and network class.
type Strategies interface {
	Get(protocol bridge.Protocol, testnet bool) (bridge.Strategy, error)
}

// Wallets creates and unseals escrow wallets.
type Wallets interface {
	GeneratePair() (*vault.Wallet, *vault.Wallet, error)
	Seal(w *vault.Wallet) (string, error)
	Open(sealed string) (*vault.Wallet, error)
}

// Listener waits for deposits into escrow addresses.
type Listener interface {
	Await(ctx context.Context, w listener.Watch) (*listener.Deposit, error)
	Cancel(ctx context.Context, txID, currency string, destination common.Address) error
}

// Payouts sends value out of escrow wallets.
type Payouts interface {
	Execute(ctx context.Context, req payout.Request) (*payout.Result, error)
	MaxSendable(ctx context.Context, gw ethereum.Gateway, owner common.Address, token *common.Address) (*big.Int, error)
}

// Service defines the interface for the transfer orchestration business logic
//
//go:generate mockery --name Service --output mocks --outpkg mocks --filename mock_service.go --with-expecter
type Service interface {
	CreateTransfer(ctx context.Context, req *transfer.CreateRequest) (*transfer.CreateResponse, error)
	StartTransfer(ctx context.Context, txID string) (*transfer.StartResponse, error)
	GetTransfer(ctx context.Context, txID string) (*transfer.View, error)
	VerifyTransaction(ctx context.Context, req *transfer.VerifyRequest) (*transfer.VerifyResponse, error)
	CancelListener(ctx context.Context, req *transfer.CancelListenerRequest) error
	RefundTransfer(ctx context.Context, txID string) (*transfer.RefundResponse, error)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store      Store
	Chains     Chains
	Assets     Assets
	Wallets    Wallets
	Strategies Strategies
	Listener   Listener
	Payouts    Payouts
}

// Options carries the fee settings applied to every transfer.
type Options struct {
	// FeeRateBps is the platform fee for assets that do not set their own.
	FeeRateBps      uint32
	OperatorAddress common.Address
}

// Orchestrator drives transfers through their lifecycle.
type Orchestrator struct {
	Deps
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger

	// background tracks transfers resumed by Recover.
	background sync.WaitGroup
}

var _ Service = (*Orchestrator)(nil)

// NewService creates a new transfer orchestrator
func NewService(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		Deps:     deps,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
	}
}

// plan is the resolved execution context of one transfer.
type plan struct {
	asset       *config.Asset
	origin      ethereum.Gateway
	destination ethereum.Gateway
	strategy    bridge.Strategy
	route       bridge.Route
	// token is the deposit token on the origin chain; nil for native assets.
	token       *common.Address
	// payoutToken is what the recipient receives on the destination chain; nil for native.
	payoutToken *common.Address
	feeRateBps  uint32
}

func (s *Orchestrator) resolve(asset *config.Asset, protocol string, testnet bool) (*plan, error) {
	r := asset.RouteFor(testnet)

	origin, err := s.Chains.Get(r.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := s.Chains.Get(r.Destination)
	if err != nil {
		return nil, err
	}
	strategy, err := s.Strategies.Get(bridge.Protocol(protocol), testnet)
	if err != nil {
		return nil, err
	}

	rate := asset.FeeRateBps
	if rate == 0 {
		rate = s.opts.FeeRateBps
	}

	return &plan{
		asset:       asset,
		origin:      origin,
		destination: destination,
		strategy:    strategy,
		route: bridge.Route{
			OriginChainID:      origin.ChainID(),
			DestinationChainID: destination.ChainID(),
			InputToken:         common.HexToAddress(r.InputToken),
			OutputToken:        common.HexToAddress(r.OutputToken),
			IsNative:           asset.Native,
			Decimals:           asset.Decimals,
		},
		token:       r.TokenAddress(),
		payoutToken: r.PayoutTokenAddress(),
		feeRateBps:  rate,
	}, nil
}

// planFor resolves the plan of a stored transfer. The bridge recorded at
// creation wins over the current catalog entry.
func (s *Orchestrator) planFor(t *transfer.Transfer) (*plan, error) {
	asset, err := s.Assets.Lookup(t.FromCurrency)
	if err != nil {
		return nil, err
	}
	return s.resolve(asset, t.Bridge, t.IsTestnet)
}

// CreateTransfer validates a request, prices it and persists a new transfer
// with a fresh pair of escrow wallets.
//
// Nothing is persisted and no wallet is created when validation or quoting fails.
func (s *Orchestrator) CreateTransfer(ctx context.Context, req *transfer.CreateRequest) (*transfer.CreateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "invalid transfer request")
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.BadRequestError(nil, "amount must be positive")
	}

	asset, err := s.Assets.Lookup(req.Token)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "unsupported token")
	}
	minimum, err := asset.Minimum()
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
	}
	if req.Amount.LessThan(minimum) {
		return nil, apperrors.BadRequestError(ErrBelowMinimum,
			fmt.Sprintf("amount below minimum of %s %s", minimum.String(), asset.Symbol))
	}

	p, err := s.resolve(asset, asset.Bridge, req.IsTestnet)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "route not supported")
	}

	amount := fees.ToBaseUnits(req.Amount, asset.Decimals)
	recipient := common.HexToAddress(req.RecipientAddress)

	quote, err := p.strategy.Quote(ctx, p.route, amount, recipient)
	if err != nil {
		return nil, quoteError(err)
	}
	if quote.IsAmountTooLow {
		return nil, apperrors.BadRequestError(bridge.ErrAmountTooLow, "amount too low for bridge")
	}

	gasBuffer := new(big.Int)
	if asset.Native {
		price, err := p.origin.GasPrice(ctx)
		if err != nil {
			return nil, apperrors.DependencyError(err, "gas price unavailable")
		}
		gasBuffer = fees.GasBuffer(asset.GasUnits, price)
	}

	fq, err := fees.Compute(amount, p.feeRateBps, quote.Fees.RelayerFeePct, gasBuffer)
	if err != nil {
		if errors.Is(err, fees.ErrAmountTooSmall) {
			return nil, apperrors.BadRequestError(err, "amount too small")
		}
		return nil, apperrors.DependencyError(err, "bridge quote rejected")
	}

	payin, payoutWallet, err := s.Wallets.GeneratePair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate escrow wallets: %w", err)
	}
	sealedPayin, err := s.Wallets.Seal(payin)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payin wallet: %w", err)
	}
	sealedPayout, err := s.Wallets.Seal(payoutWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payout wallet: %w", err)
	}

	t := &transfer.Transfer{
		TxID:                  uuid.NewString(),
		Status:                transfer.StatusNew,
		FromCurrency:          asset.Symbol,
		ToCurrency:            asset.Symbol,
		Bridge:                asset.Bridge,
		IsTestnet:             req.IsTestnet,
		Identifier:            req.Identifier,
		PayinAddress:          payin.Address().Hex(),
		PayinWalletEncrypted:  sealedPayin,
		PayoutAddress:         payoutWallet.Address().Hex(),
		PayoutWalletEncrypted: sealedPayout,
		RecipientAddress:      recipient.Hex(),
		Amount:                req.Amount,
		ExpectedSendAmount:    fees.FromBaseUnits(fq.ExpectedSend, asset.Decimals),
		ExpectedReceiveAmount: fees.FromBaseUnits(fq.ExpectedReceive, asset.Decimals),
		GasBuffer:             fees.FromBaseUnits(fq.GasBuffer, asset.Decimals),
	}
	if err := s.Store.CreateTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save transfer: %w", err)
	}
	metrics.TransfersTotal.WithLabelValues(asset.Symbol, "created").Inc()

	return &transfer.CreateResponse{
		TxID:                  t.TxID,
		Status:                t.Status,
		FromCurrency:          t.FromCurrency,
		ToCurrency:            t.ToCurrency,
		PayinAddress:          t.PayinAddress,
		PayoutAddress:         t.PayoutAddress,
		RecipientAddress:      t.RecipientAddress,
		ExpectedSendAmount:    t.ExpectedSendAmount,
		ExpectedReceiveAmount: t.ExpectedReceiveAmount,
		IsTestnet:             t.IsTestnet,
	}, nil
}

func quoteError(err error) error {
	switch {
	case errors.Is(err, bridge.ErrAmountTooLow):
		return apperrors.BadRequestError(err, "amount too low for bridge")
	case errors.Is(err, bridge.ErrRouteUnsupported):
		return apperrors.BadRequestError(err, "route not supported by bridge")
	default:
		return apperrors.DependencyError(err, "bridge quote unavailable")
	}
}

// StartTransfer waits for the deposit into the payin wallet and then carries
// the transfer through the bridge hop and the payout. It blocks until the
// transfer reaches order_completed or failed.
func (s *Orchestrator) StartTransfer(ctx context.Context, txID string) (*transfer.StartResponse, error) {
	t, err := s.Store.GetTransfer(ctx, txID)
	if err != nil {
		return nil, storeError(err)
	}
	if t.Status != transfer.StatusNew {
		return nil, apperrors.ConflictError(ErrAlreadyStarted, "transfer already started")
	}

	p, err := s.planFor(t)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "route not supported")
	}

	err = s.Store.UpdateTransfer(ctx, txID, transfer.StatusNew, transfer.Update{}.To(transfer.StatusWaiting))
	if err != nil {
		if errors.Is(err, transferstore.ErrStatusConflict) {
			return nil, apperrors.ConflictError(ErrAlreadyStarted, "transfer already started")
		}
		return nil, fmt.Errorf("failed to mark transfer waiting: %w", err)
	}
	t.Status = transfer.StatusWaiting
	metrics.TransfersTotal.WithLabelValues(t.FromCurrency, "started").Inc()

	return s.run(ctx, t, p)
}

// run executes a transfer that is in waiting.
func (s *Orchestrator) run(ctx context.Context, t *transfer.Transfer, p *plan) (*transfer.StartResponse, error) {
	started := time.Now()
	logger := s.logger.With(zap.String("tx_id", t.TxID), zap.String("asset", t.FromCurrency))

	minimum, err := p.asset.Minimum()
	if err != nil {
		return nil, err
	}

	dep, err := s.Listener.Await(ctx, listener.Watch{
		TxID:     t.TxID,
		Currency: t.FromCurrency,
		Address:  common.HexToAddress(t.PayinAddress),
		Token:    p.token,
		Decimals: p.asset.Decimals,
		Minimum:  fees.ToBaseUnits(minimum, p.asset.Decimals),
		Gateway:  p.origin,
	})
	if err != nil {
		switch {
		case errors.Is(err, listener.ErrListenerActive):
			return nil, apperrors.ConflictError(err, "transfer already being processed")
		case errors.Is(err, listener.ErrDepositTimeout):
			s.fail(ctx, t, transfer.StatusWaiting, reasonDepositTimeout)
			return nil, apperrors.TimeoutError(err, "no qualifying deposit received before timeout")
		case errors.Is(err, listener.ErrListenerCancelled):
			s.fail(ctx, t, transfer.StatusWaiting, reasonListenerCancelled)
			return nil, apperrors.DependencyError(err, msgTransferFailed)
		case ctx.Err() != nil:
			// Left in waiting; recovery resumes it.
			logger.Warn("Deposit wait interrupted", zap.Error(err))
			return nil, apperrors.DependencyError(err, msgTransferFailed)
		default:
			s.fail(ctx, t, transfer.StatusWaiting, err.Error())
			return nil, apperrors.DependencyError(err, msgTransferFailed)
		}
	}

	status := transfer.StatusWaiting
	if err := s.execute(ctx, t, p, dep, &status); err != nil {
		logger.Error("Transfer failed", zap.String("status", string(status)), zap.Error(err))
		s.fail(ctx, t, status, err.Error())
		metrics.TransferDuration.WithLabelValues(t.FromCurrency, string(transfer.StatusFailed)).
			Observe(time.Since(started).Seconds())
		return nil, apperrors.DependencyError(err, msgTransferFailed)
	}

	metrics.TransfersTotal.WithLabelValues(t.FromCurrency, "completed").Inc()
	metrics.TransferDuration.WithLabelValues(t.FromCurrency, string(transfer.StatusOrderCompleted)).
		Observe(time.Since(started).Seconds())
	logger.Info("Transfer completed", zap.Duration("duration", time.Since(started)))

	return &transfer.StartResponse{
		Success: true,
		Message: "transfer completed",
		Status:  transfer.StatusOrderCompleted,
	}, nil
}

// execute runs every step after the deposit. status tracks the ledger status
// reached so far, so a failure is recorded against the right CAS source.
func (s *Orchestrator) execute(
	ctx context.Context,
	t *transfer.Transfer,
	p *plan,
	dep *listener.Deposit,
	status *transfer.Status,
) error {
	dec := p.asset.Decimals

	if err := s.recordDeposit(ctx, t.TxID, dep, dec); err != nil {
		return err
	}
	*status = transfer.StatusOrderCreated

	// Decryption failures abort here, before anything leaves the escrow.
	payin, err := s.Wallets.Open(t.PayinWalletEncrypted)
	if err != nil {
		return fmt.Errorf("open payin wallet: %w", err)
	}
	payoutWallet, err := s.Wallets.Open(t.PayoutWalletEncrypted)
	if err != nil {
		return fmt.Errorf("open payout wallet: %w", err)
	}

	platformFee := fees.PlatformFee(dep.Amount, p.feeRateBps)
	gasBuffer := fees.ToBaseUnits(t.GasBuffer, dec)
	hopInput := new(big.Int).Sub(dep.Amount, platformFee)
	hopInput.Sub(hopInput, gasBuffer)
	if hopInput.Sign() <= 0 {
		return ErrFeesExceedInput
	}

	quote, err := p.strategy.Quote(ctx, p.route, hopInput, payoutWallet.Address())
	if err != nil {
		return fmt.Errorf("re-quote: %w", err)
	}
	if quote.IsAmountTooLow {
		return fmt.Errorf("re-quote: %w", bridge.ErrAmountTooLow)
	}
	if total := quote.Fees.RelayerFeeTotal; total != nil && total.Cmp(hopInput) >= 0 {
		return fmt.Errorf("re-quote: relayer fee %s exceeds hop input %s", total, hopInput)
	}

	if platformFee.Sign() > 0 {
		res, err := s.Payouts.Execute(ctx, payout.Request{
			Gateway:   p.origin,
			Signer:    payin,
			To:        s.opts.OperatorAddress,
			Amount:    platformFee,
			Token:     p.token,
			Operation: "platform_fee",
		})
		if err != nil {
			return fmt.Errorf("platform fee transfer: %w", err)
		}
		hash := res.TxHash.Hex()
		fee := fees.FromBaseUnits(platformFee, dec)
		err = s.Store.UpdateTransfer(ctx, t.TxID, transfer.StatusOrderCreated, transfer.Update{
			InternalTransferHash: &hash,
			PlatformFee:          &fee,
		})
		if err != nil {
			return fmt.Errorf("record platform fee: %w", err)
		}
	}

	claim := claimStatus(p.strategy.Protocol())
	hopStarted := time.Now()
	protocol := string(p.strategy.Protocol())
	hop, err := p.strategy.Submit(ctx, bridge.HopRequest{
		Quote:       quote,
		Signer:      payin,
		Origin:      p.origin,
		Destination: p.destination,
		OnProgress:  s.progressLogger(t.TxID),
	}, func(ctx context.Context, sourceTx common.Hash) error {
		hash := sourceTx.Hex()
		err := s.Store.UpdateTransfer(ctx, t.TxID, transfer.StatusOrderCreated,
			transfer.Update{FirstBridgeHash: &hash}.To(claim))
		if err == nil {
			*status = claim
		}
		return err
	})
	if err != nil {
		metrics.BridgeHops.WithLabelValues(protocol, "failed").Inc()
		return fmt.Errorf("bridge hop: %w", err)
	}
	metrics.BridgeHops.WithLabelValues(protocol, "completed").Inc()
	metrics.BridgeHopDuration.WithLabelValues(protocol).Observe(time.Since(hopStarted).Seconds())

	second := hop.DestinationTxHash.Hex()
	err = s.Store.UpdateTransfer(ctx, t.TxID, claim,
		transfer.Update{SecondBridgeHash: &second}.To(transfer.StatusReceiverRouting))
	if err != nil {
		return fmt.Errorf("record hop completion: %w", err)
	}
	*status = transfer.StatusReceiverRouting

	sendable, err := s.Payouts.MaxSendable(ctx, p.destination, payoutWallet.Address(), p.payoutToken)
	if err != nil {
		return fmt.Errorf("payout balance: %w", err)
	}
	amount := sendable
	if hop.OutputAmount != nil && hop.OutputAmount.Sign() > 0 && hop.OutputAmount.Cmp(sendable) < 0 {
		amount = hop.OutputAmount
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("payout wallet %s: %w", payoutWallet.Address().Hex(), payout.ErrInsufficientBalance)
	}

	res, err := s.Payouts.Execute(ctx, payout.Request{
		Gateway:   p.destination,
		Signer:    payoutWallet,
		To:        common.HexToAddress(t.RecipientAddress),
		Amount:    amount,
		Token:     p.payoutToken,
		Operation: "payout",
	})
	if err != nil {
		return fmt.Errorf("payout: %w", err)
	}

	hash := res.TxHash.Hex()
	received := fees.FromBaseUnits(amount, dec)
	err = s.Store.UpdateTransfer(ctx, t.TxID, transfer.StatusReceiverRouting, transfer.Update{
		TransferToReceiverHash: &hash,
		AmountReceived:         &received,
	}.To(transfer.StatusOrderCompleted))
	if err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	*status = transfer.StatusOrderCompleted
	return nil
}

// recordDeposit moves waiting to order_created under a row lock. Seeing the
// same deposit hash again is a no-op.
func (s *Orchestrator) recordDeposit(ctx context.Context, txID string, dep *listener.Deposit, decimals int32) error {
	hash := dep.TxHash.Hex()
	sender := dep.Sender.Hex()
	sent := fees.FromBaseUnits(dep.Amount, decimals)

	return s.Store.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.Store.GetTransfer(ctx, txID, transferstore.WithForUpdate())
		if err != nil {
			return err
		}
		if cur.PayinHash != "" {
			if strings.EqualFold(cur.PayinHash, hash) {
				return nil
			}
			return fmt.Errorf("%w: deposit %s already recorded", transferstore.ErrStatusConflict, cur.PayinHash)
		}
		return s.Store.UpdateTransfer(ctx, txID, transfer.StatusWaiting, transfer.Update{
			PayinHash:     &hash,
			SenderAddress: &sender,
			AmountSent:    &sent,
		}.To(transfer.StatusOrderCreated))
	})
}

func claimStatus(p bridge.Protocol) transfer.Status {
	if p == bridge.ProtocolWormhole {
		return transfer.StatusOasisClaim
	}
	return transfer.StatusCrossChainClaim
}

func (s *Orchestrator) progressLogger(txID string) func(bridge.Progress) {
	return func(p bridge.Progress) {
		fields := []zap.Field{
			zap.String("tx_id", txID),
			zap.String("step", string(p.Step)),
			zap.String("status", string(p.Status)),
		}
		if p.TxHash != (common.Hash{}) {
			fields = append(fields, zap.String("tx_hash", p.TxHash.Hex()))
		}
		if p.Err != nil {
			s.logger.Warn("Bridge step failed", append(fields, zap.Error(p.Err))...)
			return
		}
		s.logger.Info("Bridge step", fields...)
	}
}

// fail moves the transfer from status to failed with a bounded reason. It
// writes even when ctx is already cancelled.
func (s *Orchestrator) fail(ctx context.Context, t *transfer.Transfer, from transfer.Status, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	reason = truncateString(reason, failureReasonMaxLen)
	err := s.Store.UpdateTransfer(ctx, t.TxID, from, transfer.Update{FailureReason: &reason}.To(transfer.StatusFailed))
	if err != nil {
		s.logger.Error("Failed to record transfer failure",
			zap.String("tx_id", t.TxID),
			zap.String("from_status", string(from)),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	metrics.TransfersTotal.WithLabelValues(t.FromCurrency, "failed").Inc()
}

// GetTransfer returns the public view of a transfer.
func (s *Orchestrator) GetTransfer(ctx context.Context, txID string) (*transfer.View, error) {
	t, err := s.Store.GetTransfer(ctx, txID)
	if err != nil {
		return nil, storeError(err)
	}
	return transfer.NewView(t), nil
}

// VerifyTransaction looks a hash up on a configured network. Network is a
// chain name, or an asset ticker resolved to the asset's origin chain.
func (s *Orchestrator) VerifyTransaction(ctx context.Context, req *transfer.VerifyRequest) (*transfer.VerifyResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "invalid verify request")
	}
	hash, err := ethereum.ParseHash(req.TxHash)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid transaction hash")
	}

	gw, err := s.Chains.Get(req.Network)
	if err != nil {
		asset, lookupErr := s.Assets.Lookup(req.Network)
		if lookupErr != nil {
			return nil, apperrors.BadRequestError(err, "unsupported network")
		}
		gw, err = s.Chains.Get(asset.RouteFor(req.IsTestnet).Origin)
		if err != nil {
			return nil, apperrors.BadRequestError(err, "unsupported network")
		}
	}

	resp := &transfer.VerifyResponse{Network: gw.Name(), TxHash: hash.Hex()}
	tx, err := gw.GetTransaction(ctx, hash)
	if errors.Is(err, ethereum.ErrTransactionNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, apperrors.DependencyError(err, "chain lookup failed")
	}

	resp.Found = true
	resp.From = tx.From.Hex()
	resp.To = tx.To.Hex()
	if tx.Value != nil {
		resp.Value = tx.Value.String()
	}
	if tx.Token != nil {
		resp.Token = tx.Token.Hex()
	}
	if tx.TokenAmount != nil {
		resp.TokenAmount = tx.TokenAmount.String()
	}
	resp.BlockNumber = tx.BlockNumber
	resp.Pending = tx.Pending
	resp.Failed = tx.Failed
	return resp, nil
}

// CancelListener releases a deposit listener. It is a no-op when none is active.
func (s *Orchestrator) CancelListener(ctx context.Context, req *transfer.CancelListenerRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperrors.BadRequestError(err, "invalid cancel request")
	}
	return s.Listener.Cancel(ctx, req.TxID, strings.ToUpper(req.Currency), common.HexToAddress(req.Destination))
}

// RefundTransfer returns whatever remains in the payin wallet of a failed
// transfer to the depositor.
func (s *Orchestrator) RefundTransfer(ctx context.Context, txID string) (*transfer.RefundResponse, error) {
	t, err := s.Store.GetTransfer(ctx, txID)
	if err != nil {
		return nil, storeError(err)
	}
	if t.Status != transfer.StatusFailed || t.PayinHash == "" || t.RefundHash != "" || t.SenderAddress == "" {
		return nil, apperrors.ConflictError(ErrNotRefundable, "transfer is not refundable")
	}

	p, err := s.planFor(t)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "route not supported")
	}
	payin, err := s.Wallets.Open(t.PayinWalletEncrypted)
	if err != nil {
		return nil, fmt.Errorf("open payin wallet: %w", err)
	}

	amount, err := s.Payouts.MaxSendable(ctx, p.origin, payin.Address(), p.token)
	if err != nil {
		return nil, apperrors.DependencyError(err, "escrow balance unavailable")
	}
	if amount.Sign() <= 0 {
		return nil, apperrors.ConflictError(ErrNothingToRefund, "nothing to refund")
	}

	err = s.Store.UpdateTransfer(ctx, txID, transfer.StatusFailed, transfer.Update{}.To(transfer.StatusRefunding))
	if err != nil {
		if errors.Is(err, transferstore.ErrStatusConflict) {
			return nil, apperrors.ConflictError(ErrNotRefundable, "transfer is not refundable")
		}
		return nil, fmt.Errorf("failed to mark transfer refunding: %w", err)
	}

	res, err := s.Payouts.Execute(ctx, payout.Request{
		Gateway:   p.origin,
		Signer:    payin,
		To:        common.HexToAddress(t.SenderAddress),
		Amount:    amount,
		Token:     p.token,
		Operation: "refund",
	})
	if err != nil {
		s.fail(ctx, t, transfer.StatusRefunding, "refund failed: "+err.Error())
		return nil, apperrors.DependencyError(err, "refund failed")
	}

	hash := res.TxHash.Hex()
	err = s.Store.UpdateTransfer(ctx, txID, transfer.StatusRefunding,
		transfer.Update{RefundHash: &hash}.To(transfer.StatusRefunded))
	if err != nil {
		return nil, fmt.Errorf("record refund %s: %w", hash, err)
	}
	metrics.TransfersTotal.WithLabelValues(t.FromCurrency, "refunded").Inc()

	return &transfer.RefundResponse{
		TxID:       txID,
		Status:     transfer.StatusRefunded,
		RefundHash: hash,
		Amount:     fees.FromBaseUnits(amount, p.asset.Decimals),
	}, nil
}

func storeError(err error) error {
	if errors.Is(err, transferstore.ErrTransferNotFound) {
		return apperrors.ResourceNotFoundError(err, "transfer not found")
	}
	return fmt.Errorf("failed to load transfer: %w", err)
}
