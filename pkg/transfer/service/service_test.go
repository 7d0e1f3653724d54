package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/escrow-bridge/pkg/app/errors"
	"github.com/chainsafe/escrow-bridge/pkg/bridge"
	"github.com/chainsafe/escrow-bridge/pkg/bridge/across"
	"github.com/chainsafe/escrow-bridge/pkg/bridge/wormhole"
	"github.com/chainsafe/escrow-bridge/pkg/config"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/chainsafe/escrow-bridge/pkg/ethereum/ethtest"
	"github.com/chainsafe/escrow-bridge/pkg/fees"
	"github.com/chainsafe/escrow-bridge/pkg/listener"
	"github.com/chainsafe/escrow-bridge/pkg/payout"
	"github.com/chainsafe/escrow-bridge/pkg/transfer"
	"github.com/chainsafe/escrow-bridge/pkg/transferstore"
	"github.com/chainsafe/escrow-bridge/pkg/vault"
)

const testAssets = `
assets:
  - symbol: ETH
    native: true
    minimum_amount: "0.001"
    mainnet:
      origin: mainnet
      destination: base
      input_token: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
      output_token: "0x4200000000000000000000000000000000000006"
    testnet:
      origin: sepolia
      destination: arbitrum-sepolia
      input_token: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"
      output_token: "0x980B62Da83eFf3D4576C647993b0c1D7faf17c73"
`

var (
	spokePool = common.HexToAddress("0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5")
	operator  = common.HexToAddress("0x0000000000000000000000000000000000000Fee")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	depositor = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

// memStore is an in-memory Store with the same guarded-update rules as the
// postgres implementation.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*transfer.Transfer
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*transfer.Transfer)}
}

func (m *memStore) CreateTransfer(_ context.Context, t *transfer.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.TxID]; ok {
		return transferstore.ErrStatusConflict
	}
	cp := *t
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[t.TxID] = &cp
	return nil
}

func (m *memStore) GetTransfer(_ context.Context, txID string, _ ...transferstore.QueryOption) (*transfer.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[txID]
	if !ok {
		return nil, transferstore.ErrTransferNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateTransfer(_ context.Context, txID string, from transfer.Status, upd transfer.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[txID]
	if !ok {
		return transferstore.ErrTransferNotFound
	}
	if t.Status != from {
		return transferstore.ErrStatusConflict
	}

	hashes := []struct {
		src *string
		dst *string
	}{
		{upd.PayinHash, &t.PayinHash},
		{upd.FirstBridgeHash, &t.FirstBridgeHash},
		{upd.SecondBridgeHash, &t.SecondBridgeHash},
		{upd.InternalTransferHash, &t.InternalTransferHash},
		{upd.TransferToReceiverHash, &t.TransferToReceiverHash},
		{upd.RefundHash, &t.RefundHash},
	}
	for _, h := range hashes {
		if h.src != nil && *h.dst != "" {
			return transferstore.ErrStatusConflict
		}
	}
	for _, h := range hashes {
		if h.src != nil {
			*h.dst = *h.src
		}
	}

	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.SenderAddress != nil {
		t.SenderAddress = *upd.SenderAddress
	}
	if upd.AmountSent != nil {
		t.AmountSent = *upd.AmountSent
	}
	if upd.AmountReceived != nil {
		t.AmountReceived = *upd.AmountReceived
	}
	if upd.PlatformFee != nil {
		t.PlatformFee = *upd.PlatformFee
	}
	if upd.FailureReason != nil {
		t.FailureReason = *upd.FailureReason
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) ListTransfers(_ context.Context, statuses ...transfer.Status) ([]*transfer.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transfer.Transfer
	for _, t := range m.rows {
		for _, s := range statuses {
			if t.Status == s {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (m *memStore) CountByStatus(context.Context) (map[transfer.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[transfer.Status]int)
	for _, t := range m.rows {
		out[t.Status]++
	}
	return out, nil
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) status(txID string) transfer.Status {
	t, err := m.GetTransfer(context.Background(), txID)
	if err != nil {
		return ""
	}
	return t.Status
}

func (m *memStore) set(txID string, fn func(t *transfer.Transfer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.rows[txID])
}

// fakeAcross serves the two Across endpoints. A deposit is filled on the first
// status lookup by crediting the payout wallet on the destination chain,
// unless finalStatus says otherwise.
type fakeAcross struct {
	dest *ethtest.Chain

	mu       sync.Mutex
	payout   common.Address
	output   *big.Int
	fills    int
	tooLow   bool
	quotes   int
	fillHash common.Hash

	// Applied to quotes after the first one, i.e. the re-quote on deposit.
	requoteTooLow bool
	requoteFee    *big.Int
	finalStatus   string
}

func (f *fakeAcross) setPayout(addr common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payout = addr
}

func (f *fakeAcross) snapshot() (quotes int, fill common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes, f.fillHash
}

func (f *fakeAcross) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/suggested-fees", func(w http.ResponseWriter, r *http.Request) {
		amount, ok := new(big.Int).SetString(r.URL.Query().Get("amount"), 10)
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pct := big.NewInt(2_000_000_000_000_000) // 0.2%
		total := fees.RelayerFee(amount, pct)

		f.mu.Lock()
		requote := f.quotes > 0
		f.quotes++
		tooLow := f.tooLow || (requote && f.requoteTooLow)
		if requote && f.requoteFee != nil {
			total = new(big.Int).Set(f.requoteFee)
		}
		output := new(big.Int).Sub(amount, total)
		if output.Sign() < 0 {
			output.SetInt64(0)
		}
		f.output = output
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalRelayFee":       map[string]string{"pct": pct.String(), "total": total.String()},
			"timestamp":           "1700000000",
			"isAmountTooLow":      tooLow,
			"spokePoolAddress":    spokePool.Hex(),
			"exclusiveRelayer":    "0x0000000000000000000000000000000000000000",
			"exclusivityDeadline": 0,
			"fillDeadline":        1700021600,
			"outputAmount":        output.String(),
		})
	})
	mux.HandleFunc("/deposit/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fills++
		w.Header().Set("Content-Type", "application/json")
		if f.finalStatus != "" && f.finalStatus != across.DepositFilled {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": f.finalStatus})
			return
		}
		if f.fills == 1 {
			f.fillHash = common.HexToHash("0xf111000000000000000000000000000000000000000000000000000000000001")
			f.dest.Fund(f.payout, f.output)
			f.dest.AddReceipt(f.fillHash, &types.Receipt{Status: types.ReceiptStatusSuccessful})
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": across.DepositFilled, "fillTx": f.fillHash.Hex()})
	})
	return mux
}

type harness struct {
	svc    *Orchestrator
	store  *memStore
	origin *ethtest.Chain
	dest   *ethtest.Chain
	api    *fakeAcross
	vault  *vault.Vault
}

func newHarness(t *testing.T, depositTimeout time.Duration) *harness {
	return newHarnessWith(t, depositTimeout, testAssets, nil)
}

// newHarnessWith builds a harness over catalog. extra, when set, returns one
// more testnet strategy registered next to Across.
func newHarnessWith(t *testing.T, depositTimeout time.Duration, catalog string, extra func(h *harness) bridge.Strategy) *harness {
	t.Helper()

	origin := ethtest.NewChain("sepolia", 11155111)
	dest := ethtest.NewChain("arbitrum-sepolia", 421614)
	chains, err := ethereum.NewRegistry(origin, dest)
	require.NoError(t, err)

	assets, err := config.ParseAssets([]byte(catalog))
	require.NoError(t, err)

	v, err := vault.New("test-secret", "test-salt", 1)
	require.NoError(t, err)

	api := &fakeAcross{dest: dest}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	strategy := across.NewStrategy(across.NewClient(srv.URL, time.Second), across.Options{
		FillPollInterval: 5 * time.Millisecond,
		FillTimeout:      time.Second,
	}, zap.NewNop())

	h := &harness{store: newMemStore(), origin: origin, dest: dest, api: api, vault: v}
	strategies := bridge.NewSet().Register(true, strategy)
	if extra != nil {
		strategies.Register(true, extra(h))
	}

	h.svc = NewService(Deps{
		Store:      h.store,
		Chains:     chains,
		Assets:     assets,
		Wallets:    v,
		Strategies: strategies,
		Listener:   listener.New(listener.NewRegistry(), 5*time.Millisecond, depositTimeout, zap.NewNop()),
		Payouts:    payout.NewExecutor(zap.NewNop()),
	}, Options{FeeRateBps: 100, OperatorAddress: operator}, zap.NewNop())

	return h
}

// deposit pays the expected amount into the payin wallet.
func (h *harness) deposit(resp *transfer.CreateResponse) common.Hash {
	return h.origin.Deposit(depositor, common.HexToAddress(resp.PayinAddress), fees.ToBaseUnits(resp.ExpectedSendAmount, 18))
}

// sentTo returns the transactions c has submitted to addr.
func sentTo(c *ethtest.Chain, addr common.Address) []ethtest.Sent {
	var out []ethtest.Sent
	for _, s := range c.Sent() {
		if s.Req.To == addr {
			out = append(out, s)
		}
	}
	return out
}

func (h *harness) create(t *testing.T, amount string) *transfer.CreateResponse {
	t.Helper()
	resp, err := h.svc.CreateTransfer(context.Background(), &transfer.CreateRequest{
		Token:            "eth",
		RecipientAddress: recipient.Hex(),
		Amount:           decimal.RequireFromString(amount),
		IsTestnet:        true,
	})
	require.NoError(t, err)
	h.api.setPayout(common.HexToAddress(resp.PayoutAddress))
	return resp
}

func errMessage(t *testing.T, err error) string {
	t.Helper()
	var svcErr *apperrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	return svcErr.Message
}

func TestCreateTransfer(t *testing.T) {
	h := newHarness(t, time.Second)

	resp := h.create(t, "0.01")
	assert.Equal(t, transfer.StatusNew, resp.Status)
	assert.Equal(t, "ETH", resp.FromCurrency)
	assert.True(t, common.IsHexAddress(resp.PayinAddress))
	assert.True(t, common.IsHexAddress(resp.PayoutAddress))
	assert.NotEqual(t, resp.PayinAddress, resp.PayoutAddress)

	amount := decimal.RequireFromString("0.01")
	assert.True(t, resp.ExpectedSendAmount.GreaterThan(amount), "send %s", resp.ExpectedSendAmount)
	assert.True(t, resp.ExpectedReceiveAmount.LessThan(amount), "receive %s", resp.ExpectedReceiveAmount)
	assert.Equal(t, "0.0099", resp.ExpectedReceiveAmount.String())

	stored, err := h.store.GetTransfer(context.Background(), resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, "across", stored.Bridge)
	assert.Equal(t, "0.00025", stored.GasBuffer.String())

	// Sealed wallets round-trip to the advertised addresses.
	payin, err := h.vault.Open(stored.PayinWalletEncrypted)
	require.NoError(t, err)
	assert.Equal(t, resp.PayinAddress, payin.Address().Hex())
	assert.NotContains(t, stored.PayinWalletEncrypted, strings.ToLower(resp.PayinAddress[2:]))
}

func TestCreateTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     transfer.CreateRequest
		tooLow  bool
		message string
	}{
		{
			name:    "below minimum",
			req:     transfer.CreateRequest{Token: "ETH", RecipientAddress: recipient.Hex(), Amount: decimal.RequireFromString("0.0005"), IsTestnet: true},
			message: "amount below minimum of 0.001 ETH",
		},
		{
			name:    "unsupported token",
			req:     transfer.CreateRequest{Token: "DOGE", RecipientAddress: recipient.Hex(), Amount: decimal.RequireFromString("1"), IsTestnet: true},
			message: "unsupported token",
		},
		{
			name:    "bad recipient",
			req:     transfer.CreateRequest{Token: "ETH", RecipientAddress: "0x1234", Amount: decimal.RequireFromString("1"), IsTestnet: true},
			message: "invalid transfer request",
		},
		{
			name:    "mainnet route not configured",
			req:     transfer.CreateRequest{Token: "ETH", RecipientAddress: recipient.Hex(), Amount: decimal.RequireFromString("1")},
			message: "route not supported",
		},
		{
			name:    "bridge refuses amount",
			req:     transfer.CreateRequest{Token: "ETH", RecipientAddress: recipient.Hex(), Amount: decimal.RequireFromString("0.01"), IsTestnet: true},
			tooLow:  true,
			message: "amount too low for bridge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			h.api.tooLow = tt.tooLow

			_, err := h.svc.CreateTransfer(context.Background(), &tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CategoryDataError), "got %v", err)
			assert.Equal(t, tt.message, errMessage(t, err))

			counts, _ := h.store.CountByStatus(context.Background())
			assert.Empty(t, counts, "nothing may be persisted")
		})
	}
}

func TestStartTransfer_Completes(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()

	resp := h.create(t, "0.01")
	sent := fees.ToBaseUnits(resp.ExpectedSendAmount, 18)
	payin := common.HexToAddress(resp.PayinAddress)
	depositHash := h.origin.Deposit(depositor, payin, sent)

	out, err := h.svc.StartTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, transfer.StatusOrderCompleted, out.Status)

	got, err := h.svc.GetTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusOrderCompleted, got.Status)
	assert.Equal(t, depositHash.Hex(), got.PayinHash)
	assert.Equal(t, depositor.Hex(), got.SenderAddress)
	assert.NotEmpty(t, got.InternalTransferHash)
	assert.NotEmpty(t, got.FirstBridgeHash)
	quotes, fill := h.api.snapshot()
	assert.Equal(t, fill.Hex(), got.SecondBridgeHash)
	assert.NotEmpty(t, got.TransferToReceiverHash)
	assert.Empty(t, got.FailureReason)
	assert.True(t, got.AmountSent.Equal(resp.ExpectedSendAmount))
	assert.True(t, got.AmountReceived.IsPositive())

	// Platform fee reached the operator, the payout reached the recipient.
	fee := fees.PlatformFee(sent, 100)
	opBal, _ := h.origin.BalanceAt(ctx, operator)
	assert.Equal(t, fee.String(), opBal.String())
	recvBal, _ := h.dest.BalanceAt(ctx, recipient)
	assert.Equal(t, fees.ToBaseUnits(got.AmountReceived, 18).String(), recvBal.String())

	// The bridge deposit went to the spoke pool from the payin wallet.
	var bridged bool
	for _, s := range h.origin.Sent() {
		if s.Req.To == spokePool {
			bridged = true
			assert.Equal(t, payin, s.From)
		}
	}
	assert.True(t, bridged)
	assert.Equal(t, 2, quotes, "quote at create and re-quote at deposit")
}

func TestStartTransfer_DepositBelowMinimumTimesOut(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	resp := h.create(t, "0.01")
	h.origin.Deposit(depositor, common.HexToAddress(resp.PayinAddress), big.NewInt(500_000_000_000_000))

	_, err := h.svc.StartTransfer(context.Background(), resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryConnectionTimeout), "got %v", err)
	assert.Equal(t, "no qualifying deposit received before timeout", errMessage(t, err))

	got, err := h.svc.GetTransfer(context.Background(), resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Equal(t, reasonDepositTimeout, got.FailureReason)
	assert.Empty(t, got.PayinHash)
	assert.Empty(t, h.origin.Sent(), "nothing may leave the escrow")
}

func TestStartTransfer_SecondStartConflicts(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()
	resp := h.create(t, "0.01")

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.StartTransfer(ctx, resp.TxID)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return h.store.status(resp.TxID) == transfer.StatusWaiting
	}, time.Second, 5*time.Millisecond)

	_, err := h.svc.StartTransfer(ctx, resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict), "got %v", err)

	// Cancelling releases the stuck listener and fails the transfer.
	require.NoError(t, h.svc.CancelListener(ctx, &transfer.CancelListenerRequest{
		TxID:        resp.TxID,
		Currency:    "eth",
		Destination: resp.PayinAddress,
	}))
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first start did not return after cancel")
	}
	assert.Equal(t, transfer.StatusFailed, h.store.status(resp.TxID))
}

func TestStartTransfer_UnknownTransfer(t *testing.T) {
	h := newHarness(t, time.Second)
	_, err := h.svc.StartTransfer(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound), "got %v", err)
}

func TestStartTransfer_DepositDoesNotCoverFees(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	resp := h.create(t, "0.01")

	// Qualifies against the asset minimum but not against fee plus gas buffer.
	h.origin.Deposit(depositor, common.HexToAddress(resp.PayinAddress), big.NewInt(1_000_000_000_000_000))
	h.store.set(resp.TxID, func(tr *transfer.Transfer) {
		tr.GasBuffer = decimal.RequireFromString("0.001")
	})

	_, err := h.svc.StartTransfer(context.Background(), resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure), "got %v", err)
	assert.Equal(t, msgTransferFailed, errMessage(t, err))

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.NotEmpty(t, got.PayinHash, "deposit is recorded before the failure")
	assert.Empty(t, got.FirstBridgeHash)
	assert.Empty(t, h.origin.Sent())
}

func TestStartTransfer_ExpiredHopFails(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	h.api.finalStatus = across.DepositExpired
	resp := h.create(t, "0.01")
	h.deposit(resp)

	_, err := h.svc.StartTransfer(context.Background(), resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure), "got %v", err)

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "bridge hop")
	assert.Contains(t, got.FailureReason, across.DepositExpired)
	assert.NotEmpty(t, got.InternalTransferHash)
	assert.Empty(t, got.SecondBridgeHash)
	assert.Empty(t, got.TransferToReceiverHash)

	deposits := sentTo(h.origin, spokePool)
	require.Len(t, deposits, 1, "an expired deposit is not resubmitted")
	assert.Equal(t, deposits[0].Hash.Hex(), got.FirstBridgeHash)
}

func TestStartTransfer_RequoteRejected(t *testing.T) {
	tests := []struct {
		name   string
		tooLow bool
		fee    func(hopInput *big.Int) *big.Int
		reason string
	}{
		{
			name:   "amount too low",
			tooLow: true,
			reason: "re-quote",
		},
		{
			name:   "relayer fee equals hop input",
			fee:    func(hopInput *big.Int) *big.Int { return hopInput },
			reason: "exceeds hop input",
		},
		{
			name:   "relayer fee above hop input",
			fee:    func(hopInput *big.Int) *big.Int { return new(big.Int).Add(hopInput, big.NewInt(1)) },
			reason: "exceeds hop input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 5*time.Second)
			resp := h.create(t, "0.01")

			stored, err := h.store.GetTransfer(context.Background(), resp.TxID)
			require.NoError(t, err)
			sent := fees.ToBaseUnits(resp.ExpectedSendAmount, 18)
			hopInput := new(big.Int).Sub(sent, fees.PlatformFee(sent, 100))
			hopInput.Sub(hopInput, fees.ToBaseUnits(stored.GasBuffer, 18))

			h.api.mu.Lock()
			h.api.requoteTooLow = tt.tooLow
			if tt.fee != nil {
				h.api.requoteFee = tt.fee(hopInput)
			}
			h.api.mu.Unlock()

			h.deposit(resp)
			_, err = h.svc.StartTransfer(context.Background(), resp.TxID)
			require.Error(t, err)

			got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
			assert.Equal(t, transfer.StatusFailed, got.Status)
			assert.Contains(t, got.FailureReason, tt.reason)
			assert.NotEmpty(t, got.PayinHash)
			assert.Empty(t, got.InternalTransferHash)
			assert.Empty(t, got.FirstBridgeHash)

			quotes, _ := h.api.snapshot()
			assert.Equal(t, 2, quotes)
			assert.Empty(t, sentTo(h.origin, spokePool))
			assert.Empty(t, h.origin.Sent(), "nothing may leave the escrow")
		})
	}
}

func TestStartTransfer_PlatformFeeTransferFails(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	h.origin.SendFunc = func(_ common.Address, req ethereum.TxRequest) error {
		if req.To == operator {
			return errors.New("nonce too low")
		}
		return nil
	}
	resp := h.create(t, "0.01")
	h.deposit(resp)

	_, err := h.svc.StartTransfer(context.Background(), resp.TxID)
	require.Error(t, err)
	assert.Equal(t, msgTransferFailed, errMessage(t, err))

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "platform fee transfer")
	assert.Contains(t, got.FailureReason, "nonce too low")
	assert.Empty(t, got.InternalTransferHash)
	assert.Empty(t, got.FirstBridgeHash)
	assert.Empty(t, sentTo(h.origin, spokePool), "the hop never starts")

	bal, _ := h.origin.BalanceAt(context.Background(), common.HexToAddress(resp.PayinAddress))
	assert.Equal(t, fees.ToBaseUnits(resp.ExpectedSendAmount, 18).String(), bal.String(), "funds stay in escrow")
}

func TestStartTransfer_PayoutFails(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	h.dest.SendFunc = func(_ common.Address, req ethereum.TxRequest) error {
		if req.To == recipient {
			return errors.New("replacement transaction underpriced")
		}
		return nil
	}
	resp := h.create(t, "0.01")
	h.deposit(resp)

	_, err := h.svc.StartTransfer(context.Background(), resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure), "got %v", err)

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "payout")
	assert.NotEmpty(t, got.FirstBridgeHash)
	_, fill := h.api.snapshot()
	assert.Equal(t, fill.Hex(), got.SecondBridgeHash)
	assert.Empty(t, got.TransferToReceiverHash)
	assert.True(t, got.AmountReceived.IsZero())

	bal, _ := h.dest.BalanceAt(context.Background(), common.HexToAddress(resp.PayoutAddress))
	assert.Positive(t, bal.Sign(), "bridged funds stay in the payout wallet")
	recvBal, _ := h.dest.BalanceAt(context.Background(), recipient)
	assert.Zero(t, recvBal.Sign())
}

const wormholeAssets = `
assets:
  - symbol: ETH
    native: true
    minimum_amount: "0.001"
    bridge: wormhole
    mainnet:
      origin: mainnet
      destination: base
    testnet:
      origin: sepolia
      destination: arbitrum-sepolia
`

var (
	whSrcTokenBridge = common.HexToAddress("0xDB5492265f6038831E89f495670FF909aDe94bd9")
	whSrcCore        = common.HexToAddress("0x4a8bc80Ed5a4067f1CCf107057b8270E0cC11A78")
	whDstTokenBridge = common.HexToAddress("0xC7A204bDBFe983FCD8d8E61D02b475D4073fF97e")
	whDstCore        = common.HexToAddress("0x6b9C8671cdDC8dEab9c719bB87cBd3e782bA6a35")
)

// messagePublished is the core bridge event a token bridge transfer emits.
func messagePublished(t *testing.T, sequence uint64) *types.Log {
	t.Helper()
	newType := func(name string) abi.Type {
		typ, err := abi.NewType(name, "", nil)
		require.NoError(t, err)
		return typ
	}
	args := abi.Arguments{
		{Type: newType("uint64")},
		{Type: newType("uint32")},
		{Type: newType("bytes")},
		{Type: newType("uint8")},
	}
	data, err := args.Pack(sequence, uint32(0), []byte{0x01}, uint8(1))
	require.NoError(t, err)
	return &types.Log{
		Address: whSrcCore,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("LogMessagePublished(address,uint64,uint32,bytes,uint8)")),
			common.BytesToHash(whSrcTokenBridge.Bytes()),
		},
		Data: data,
	}
}

func TestStartTransfer_WormholeCompletes(t *testing.T) {
	redeemerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	redeemer := ethereum.NewKeySigner(redeemerKey)

	// The status the ledger holds while the attestation is pending.
	var txID, attesting atomic.Value
	h := newHarnessWith(t, 5*time.Second, wormholeAssets, func(h *harness) bridge.Strategy {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if id, ok := txID.Load().(string); ok {
				attesting.Store(h.store.status(id))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"vaaBytes": base64.StdEncoding.EncodeToString([]byte("signed-vaa"))})
		}))
		t.Cleanup(srv.Close)
		return wormhole.NewStrategy(wormhole.NewClient(srv.URL), map[int64]wormhole.Endpoint{
			11155111: {WormholeChainID: 10002, TokenBridge: whSrcTokenBridge, CoreBridge: whSrcCore},
			421614:   {WormholeChainID: 10003, TokenBridge: whDstTokenBridge, CoreBridge: whDstCore},
		}, redeemer, wormhole.Options{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, zap.NewNop())
	})
	h.dest.Fund(redeemer.Address(), big.NewInt(1_000_000_000_000_000))

	var bridged atomic.Pointer[big.Int]
	h.origin.LogsFunc = func(req ethereum.TxRequest) []*types.Log {
		if req.To == whSrcTokenBridge {
			return []*types.Log{messagePublished(t, 7)}
		}
		return nil
	}
	h.origin.SendFunc = func(_ common.Address, req ethereum.TxRequest) error {
		if req.To == whSrcTokenBridge {
			bridged.Store(new(big.Int).Set(req.Value))
		}
		return nil
	}

	ctx := context.Background()
	resp := h.create(t, "0.01")
	txID.Store(resp.TxID)
	payoutWallet := common.HexToAddress(resp.PayoutAddress)
	h.dest.SendFunc = func(_ common.Address, req ethereum.TxRequest) error {
		if req.To == whDstTokenBridge {
			h.dest.Fund(payoutWallet, bridged.Load())
		}
		return nil
	}

	stored, err := h.store.GetTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, "wormhole", stored.Bridge)

	h.deposit(resp)
	out, err := h.svc.StartTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusOrderCompleted, out.Status)
	assert.Equal(t, transfer.StatusOasisClaim, attesting.Load())

	got, err := h.store.GetTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusOrderCompleted, got.Status)
	assert.NotEmpty(t, got.InternalTransferHash)

	transfers := sentTo(h.origin, whSrcTokenBridge)
	require.Len(t, transfers, 1)
	assert.Equal(t, common.HexToAddress(resp.PayinAddress), transfers[0].From)
	assert.Equal(t, transfers[0].Hash.Hex(), got.FirstBridgeHash)
	assert.Zero(t, new(big.Int).Mod(transfers[0].Req.Value, big.NewInt(10_000_000_000)).Sign(), "amount is truncated to 8 decimals")

	redeems := sentTo(h.dest, whDstTokenBridge)
	require.Len(t, redeems, 1)
	assert.Equal(t, redeemer.Address(), redeems[0].From)
	assert.Equal(t, redeems[0].Hash.Hex(), got.SecondBridgeHash)

	recvBal, _ := h.dest.BalanceAt(ctx, recipient)
	assert.Positive(t, recvBal.Sign())
	assert.Equal(t, fees.ToBaseUnits(got.AmountReceived, 18).String(), recvBal.String())
}

func TestRefundTransfer(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	resp := h.create(t, "0.01")

	_, err := h.svc.RefundTransfer(ctx, resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict), "new transfers are not refundable")

	h.store.set(resp.TxID, func(tr *transfer.Transfer) {
		tr.Status = transfer.StatusFailed
		tr.PayinHash = "0x01"
		tr.SenderAddress = depositor.Hex()
	})

	_, err = h.svc.RefundTransfer(ctx, resp.TxID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict), "empty escrow has nothing to refund")
	assert.Equal(t, transfer.StatusFailed, h.store.status(resp.TxID))

	payin := common.HexToAddress(resp.PayinAddress)
	h.origin.Fund(payin, big.NewInt(10_000_000_000_000_000))

	out, err := h.svc.RefundTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusRefunded, out.Status)
	assert.NotEmpty(t, out.RefundHash)

	gasCost := big.NewInt(21_000 * 1_000_000_000)
	want := new(big.Int).Sub(big.NewInt(10_000_000_000_000_000), gasCost)
	bal, _ := h.origin.BalanceAt(ctx, depositor)
	assert.Equal(t, want.String(), bal.String())
	assert.Equal(t, fees.FromBaseUnits(want, 18).String(), out.Amount.String())

	got, _ := h.store.GetTransfer(ctx, resp.TxID)
	assert.Equal(t, out.RefundHash, got.RefundHash)

	_, err = h.svc.RefundTransfer(ctx, resp.TxID)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict), "refund happens once")
}

func TestVerifyTransaction(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	payin := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	hash := h.origin.Deposit(depositor, payin, big.NewInt(42))

	out, err := h.svc.VerifyTransaction(ctx, &transfer.VerifyRequest{Network: "sepolia", TxHash: hash.Hex()})
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, depositor.Hex(), out.From)
	assert.Equal(t, payin.Hex(), out.To)
	assert.Equal(t, "42", out.Value)

	// A ticker resolves to the asset's origin chain.
	out, err = h.svc.VerifyTransaction(ctx, &transfer.VerifyRequest{Network: "ETH", TxHash: hash.Hex(), IsTestnet: true})
	require.NoError(t, err)
	assert.Equal(t, "sepolia", out.Network)
	assert.True(t, out.Found)

	missing := "0x" + strings.Repeat("ab", 32)
	out, err = h.svc.VerifyTransaction(ctx, &transfer.VerifyRequest{Network: "sepolia", TxHash: missing})
	require.NoError(t, err)
	assert.False(t, out.Found)

	_, err = h.svc.VerifyTransaction(ctx, &transfer.VerifyRequest{Network: "solana", TxHash: missing})
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	_, err = h.svc.VerifyTransaction(ctx, &transfer.VerifyRequest{Network: "sepolia", TxHash: "0x12"})
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestRecover(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waiting := h.create(t, "0.01")
	h.store.set(waiting.TxID, func(tr *transfer.Transfer) { tr.Status = transfer.StatusWaiting })

	inflight := h.create(t, "0.01")
	h.store.set(inflight.TxID, func(tr *transfer.Transfer) { tr.Status = transfer.StatusCrossChainClaim })

	refunding := h.create(t, "0.01")
	h.store.set(refunding.TxID, func(tr *transfer.Transfer) { tr.Status = transfer.StatusRefunding })

	// The last created transfer owns the fake bridge's payout address.
	h.api.setPayout(common.HexToAddress(waiting.PayoutAddress))

	report, err := h.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, &RecoveryReport{Resumed: 1, Interrupted: 1, Refunding: 1}, report)

	got, _ := h.store.GetTransfer(ctx, inflight.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Equal(t, reasonRestart, got.FailureReason)
	assert.Equal(t, transfer.StatusRefunding, h.store.status(refunding.TxID))

	h.origin.Deposit(depositor, common.HexToAddress(waiting.PayinAddress), fees.ToBaseUnits(waiting.ExpectedSendAmount, 18))
	require.Eventually(t, func() bool {
		return h.store.status(waiting.TxID) == transfer.StatusOrderCompleted
	}, 3*time.Second, 10*time.Millisecond)
	h.svc.Wait()
}

func TestRecover_ShutdownLeavesWaiting(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	resp := h.create(t, "0.01")
	h.store.set(resp.TxID, func(tr *transfer.Transfer) { tr.Status = transfer.StatusWaiting })

	_, err := h.svc.Recover(ctx)
	require.NoError(t, err)
	cancel()
	h.svc.Wait()

	assert.Equal(t, transfer.StatusWaiting, h.store.status(resp.TxID))
}

func TestFailureReasonIsBounded(t *testing.T) {
	h := newHarness(t, time.Second)
	resp := h.create(t, "0.01")

	tr, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	h.svc.fail(context.Background(), tr, transfer.StatusNew, strings.Repeat("x", 1000))

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.LessOrEqual(t, len(got.FailureReason), failureReasonMaxLen+3)
}

func TestFailureReasonKeepsValidUTF8(t *testing.T) {
	h := newHarness(t, time.Second)
	resp := h.create(t, "0.01")

	reason := "bridge hop:: " + strings.Repeat("é", 200)
	tr, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	h.svc.fail(context.Background(), tr, transfer.StatusNew, reason)

	got, _ := h.store.GetTransfer(context.Background(), resp.TxID)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.True(t, utf8.ValidString(got.FailureReason))
	assert.LessOrEqual(t, len(got.FailureReason), failureReasonMaxLen+3)
	assert.True(t, strings.HasPrefix(reason, strings.TrimSuffix(got.FailureReason, "...")))
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"aé", 2, "a..."},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
	}
	for _, tt := range tests {
		got := truncateString(tt.in, tt.max)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestCancelListener(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()
	resp := h.create(t, "0.01")

	errCh := make(chan error, 1)
	go func() {
		_, err := h.svc.StartTransfer(ctx, resp.TxID)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		return h.store.status(resp.TxID) == transfer.StatusWaiting
	}, 2*time.Second, 5*time.Millisecond)

	req := &transfer.CancelListenerRequest{TxID: resp.TxID, Currency: "eth", Destination: resp.PayinAddress}
	// Retry until the listener has registered its key.
	require.Eventually(t, func() bool {
		assert.NoError(t, h.svc.CancelListener(ctx, req))
		select {
		case err := <-errCh:
			assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.store.GetTransfer(ctx, resp.TxID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusFailed, got.Status)
	assert.Equal(t, reasonListenerCancelled, got.FailureReason)
}

func TestCancelListener_NoopAndValidation(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()

	err := h.svc.CancelListener(ctx, &transfer.CancelListenerRequest{
		TxID: "missing", Currency: "ETH", Destination: recipient.Hex(),
	})
	require.NoError(t, err)

	err = h.svc.CancelListener(ctx, &transfer.CancelListenerRequest{TxID: "missing", Currency: "ETH", Destination: "nope"})
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

type countingStore struct {
	*memStore
	counts atomic.Int32
}

func (c *countingStore) CountByStatus(ctx context.Context) (map[transfer.Status]int, error) {
	c.counts.Add(1)
	return c.memStore.CountByStatus(ctx)
}

func TestMonitor_PublishesUntilCancelled(t *testing.T) {
	h := newHarness(t, time.Second)
	store := &countingStore{memStore: h.store}
	h.svc.Store = store

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Monitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.counts.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
