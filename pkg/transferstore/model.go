package transferstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

// TransferDao is a data access object that maps directly to the 'transfers' table in PostgreSQL.
type TransferDao struct {
	bun.BaseModel          `bun:"table:transfers,alias:t"`
	TxID                   string    `bun:"tx_id,pk,type:varchar(36)"`
	Status                 string    `bun:"status,notnull,type:varchar(32)"`
	FromCurrency           string    `bun:"from_currency,notnull,type:varchar(16)"`
	ToCurrency             string    `bun:"to_currency,notnull,type:varchar(16)"`
	Bridge                 string    `bun:"bridge,notnull,type:varchar(16)"`
	IsTestnet              bool      `bun:"is_testnet,notnull,default:false"`
	Identifier             *string   `bun:"identifier,type:varchar(128)"`
	PayinAddress           string    `bun:"payin_address,notnull,type:varchar(42)"`
	PayinWalletEncrypted   string    `bun:"payin_wallet_encrypted,notnull,type:text"`
	PayoutAddress          string    `bun:"payout_address,notnull,type:varchar(42)"`
	PayoutWalletEncrypted  string    `bun:"payout_wallet_encrypted,notnull,type:text"`
	RecipientAddress       string    `bun:"recipient_address,notnull,type:varchar(42)"`
	SenderAddress          *string   `bun:"sender_address,type:varchar(42)"`
	Amount                 string    `bun:"amount,notnull,type:numeric(78,18)"`
	ExpectedSendAmount     string    `bun:"expected_send_amount,notnull,type:numeric(78,18)"`
	ExpectedReceiveAmount  string    `bun:"expected_receive_amount,notnull,type:numeric(78,18)"`
	GasBuffer              string    `bun:"gas_buffer,notnull,type:numeric(78,18)"`
	PlatformFee            *string   `bun:"platform_fee,type:numeric(78,18)"`
	AmountSent             *string   `bun:"amount_sent,type:numeric(78,18)"`
	AmountReceived         *string   `bun:"amount_received,type:numeric(78,18)"`
	PayinHash              *string   `bun:"payin_hash,type:varchar(66)"`
	FirstBridgeHash        *string   `bun:"first_bridge_hash,type:varchar(66)"`
	SecondBridgeHash       *string   `bun:"second_bridge_hash,type:varchar(66)"`
	InternalTransferHash   *string   `bun:"internal_transfer_hash,type:varchar(66)"`
	TransferToReceiverHash *string   `bun:"transfer_to_receiver_hash,type:varchar(66)"`
	RefundHash             *string   `bun:"refund_hash,type:varchar(66)"`
	FailureReason          *string   `bun:"failure_reason,type:varchar(255)"`
	CreatedAt              time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optDecimal(d decimal.Decimal) *string {
	if d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func derefDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return parseDecimal(*s)
}

// toTransferDao converts a transfer.Transfer to TransferDao.
func toTransferDao(t *transfer.Transfer) *TransferDao {
	return &TransferDao{
		TxID:                   t.TxID,
		Status:                 string(t.Status),
		FromCurrency:           t.FromCurrency,
		ToCurrency:             t.ToCurrency,
		Bridge:                 t.Bridge,
		IsTestnet:              t.IsTestnet,
		Identifier:             optString(t.Identifier),
		PayinAddress:           t.PayinAddress,
		PayinWalletEncrypted:   t.PayinWalletEncrypted,
		PayoutAddress:          t.PayoutAddress,
		PayoutWalletEncrypted:  t.PayoutWalletEncrypted,
		RecipientAddress:       t.RecipientAddress,
		SenderAddress:          optString(t.SenderAddress),
		Amount:                 t.Amount.String(),
		ExpectedSendAmount:     t.ExpectedSendAmount.String(),
		ExpectedReceiveAmount:  t.ExpectedReceiveAmount.String(),
		GasBuffer:              t.GasBuffer.String(),
		PlatformFee:            optDecimal(t.PlatformFee),
		AmountSent:             optDecimal(t.AmountSent),
		AmountReceived:         optDecimal(t.AmountReceived),
		PayinHash:              optString(t.PayinHash),
		FirstBridgeHash:        optString(t.FirstBridgeHash),
		SecondBridgeHash:       optString(t.SecondBridgeHash),
		InternalTransferHash:   optString(t.InternalTransferHash),
		TransferToReceiverHash: optString(t.TransferToReceiverHash),
		RefundHash:             optString(t.RefundHash),
		FailureReason:          optString(t.FailureReason),
	}
}

// toTransfer converts a TransferDao to transfer.Transfer.
func toTransfer(dao *TransferDao) *transfer.Transfer {
	return &transfer.Transfer{
		TxID:                   dao.TxID,
		Status:                 transfer.Status(dao.Status),
		FromCurrency:           dao.FromCurrency,
		ToCurrency:             dao.ToCurrency,
		Bridge:                 dao.Bridge,
		IsTestnet:              dao.IsTestnet,
		Identifier:             derefString(dao.Identifier),
		PayinAddress:           dao.PayinAddress,
		PayinWalletEncrypted:   dao.PayinWalletEncrypted,
		PayoutAddress:          dao.PayoutAddress,
		PayoutWalletEncrypted:  dao.PayoutWalletEncrypted,
		RecipientAddress:       dao.RecipientAddress,
		SenderAddress:          derefString(dao.SenderAddress),
		Amount:                 parseDecimal(dao.Amount),
		ExpectedSendAmount:     parseDecimal(dao.ExpectedSendAmount),
		ExpectedReceiveAmount:  parseDecimal(dao.ExpectedReceiveAmount),
		GasBuffer:              parseDecimal(dao.GasBuffer),
		PlatformFee:            derefDecimal(dao.PlatformFee),
		AmountSent:             derefDecimal(dao.AmountSent),
		AmountReceived:         derefDecimal(dao.AmountReceived),
		PayinHash:              derefString(dao.PayinHash),
		FirstBridgeHash:        derefString(dao.FirstBridgeHash),
		SecondBridgeHash:       derefString(dao.SecondBridgeHash),
		InternalTransferHash:   derefString(dao.InternalTransferHash),
		TransferToReceiverHash: derefString(dao.TransferToReceiverHash),
		RefundHash:             derefString(dao.RefundHash),
		FailureReason:          derefString(dao.FailureReason),
		CreatedAt:              dao.CreatedAt,
		UpdatedAt:              dao.UpdatedAt,
	}
}
