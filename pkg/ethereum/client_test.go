package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/chainsafe/escrow-bridge/pkg/config"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBackend struct {
	nonce    uint64
	gasPrice *big.Int
	gas      uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	calls    int
}

func (m *mockBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return m.gasPrice, nil
}

func (m *mockBackend) EstimateGas(context.Context, geth.CallMsg) (uint64, error) {
	return m.gas, nil
}

func (m *mockBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	m.calls++
	if r, ok := m.receipts[hash]; ok {
		return r, nil
	}
	return nil, geth.NotFound
}

func (m *mockBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if tx, ok := m.txs[hash]; ok {
		return tx, false, nil
	}
	return nil, false, geth.NotFound
}

func (m *mockBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Time: 1_700_000_000}, nil
}

func (m *mockBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(99), nil
}

func (m *mockBackend) CallContract(context.Context, geth.CallMsg, *big.Int) ([]byte, error) {
	return common.LeftPadBytes(big.NewInt(500).Bytes(), 32), nil
}

func newTestClient(t *testing.T, b *mockBackend, maxGasPrice string) *Client {
	t.Helper()
	c, err := newClient("sepolia", config.ChainConfig{
		ChainID:     11155111,
		MaxGasPrice: maxGasPrice,
		ReceiptPoll: 5 * time.Millisecond,
	}, b, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestClient_SendFillsGasAndSigns(t *testing.T) {
	b := &mockBackend{nonce: 7, gasPrice: big.NewInt(3_000_000_000), gas: 21_000}
	c := newTestClient(t, b, "")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	hash, err := c.Send(context.Background(), NewKeySigner(key), TxRequest{To: to, Value: big.NewInt(1000)})
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(21_000), tx.Gas())
	assert.Equal(t, "3000000000", tx.GasPrice().String())
	assert.Equal(t, to, *tx.To())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
}

func TestClient_GasPriceCapped(t *testing.T) {
	b := &mockBackend{gasPrice: big.NewInt(900)}
	c := newTestClient(t, b, "500")

	p, err := c.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "500", p.String())

	_, err = newClient("x", config.ChainConfig{MaxGasPrice: "lots"}, b, nil, zap.NewNop())
	require.Error(t, err)
}

func TestClient_WaitMined(t *testing.T) {
	ok := common.HexToHash("0x01")
	bad := common.HexToHash("0x02")
	b := &mockBackend{receipts: map[common.Hash]*types.Receipt{
		ok:  {Status: types.ReceiptStatusSuccessful, GasUsed: 21_000},
		bad: {Status: types.ReceiptStatusFailed},
	}}
	c := newTestClient(t, b, "")

	r, err := c.WaitMined(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, uint64(21_000), r.GasUsed)

	_, err = c.WaitMined(context.Background(), bad)
	require.ErrorIs(t, err, ErrTransactionReverted)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.WaitMined(ctx, common.HexToHash("0x03"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, b.calls, 3)
}

func TestClient_GetTransactionDecodesTokenTransfer(t *testing.T) {
	key, _ := crypto.GenerateKey()
	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	data, err := PackTransfer(recipient, big.NewInt(42))
	require.NoError(t, err)

	chainID := big.NewInt(11155111)
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce: 1, To: &token, Value: new(big.Int), Gas: 60_000, GasPrice: big.NewInt(1), Data: data,
	}), types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)

	b := &mockBackend{
		txs: map[common.Hash]*types.Transaction{tx.Hash(): tx},
		receipts: map[common.Hash]*types.Receipt{
			tx.Hash(): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		},
	}
	c := newTestClient(t, b, "")

	got, err := c.GetTransaction(context.Background(), tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, KindToken, got.Kind)
	assert.Equal(t, recipient, got.To)
	assert.Equal(t, token, *got.Token)
	assert.Equal(t, "42", got.TokenAmount.String())
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got.From)
	assert.Equal(t, uint64(10), got.BlockNumber)
	assert.False(t, got.Failed)
}

func TestClient_TokenBalance(t *testing.T) {
	c := newTestClient(t, &mockBackend{}, "")
	bal, err := c.TokenBalance(context.Background(), common.Address{1}, common.Address{2})
	require.NoError(t, err)
	assert.Equal(t, "500", bal.String())
}
