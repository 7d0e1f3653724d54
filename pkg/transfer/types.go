package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRequest is the body of POST /api/v1/transfers
type CreateRequest struct {
	Token            string          `json:"token" validate:"required,alphanum,max=16"`
	RecipientAddress string          `json:"recipientAddress" validate:"required,eth_addr"`
	Amount           decimal.Decimal `json:"amount"`
	IsTestnet        bool            `json:"isTestnet"`
	Identifier       string          `json:"identifier,omitzero" validate:"omitempty,max=128"`
}

// CreateResponse carries only public fields of a new transfer
type CreateResponse struct {
	TxID                  string          `json:"txId"`
	Status                Status          `json:"status"`
	FromCurrency          string          `json:"fromCurrency"`
	ToCurrency            string          `json:"toCurrency"`
	PayinAddress          string          `json:"payinAddress"`
	PayoutAddress         string          `json:"payoutAddress"`
	RecipientAddress      string          `json:"recipientAddress"`
	ExpectedSendAmount    decimal.Decimal `json:"expectedSendAmount"`
	ExpectedReceiveAmount decimal.Decimal `json:"expectedReceiveAmount"`
	IsTestnet             bool            `json:"isTestnet"`
}

// StartRequest is the body of POST /api/v1/transfers/start
type StartRequest struct {
	TxID string `json:"txId" validate:"required"`
}

// StartResponse reports the outcome of a completed start
type StartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// View is the status-read shape of a transfer; sealed wallets are omitted.
type View struct {
	TxID                   string          `json:"txId"`
	Status                 Status          `json:"status"`
	FromCurrency           string          `json:"fromCurrency"`
	ToCurrency             string          `json:"toCurrency"`
	Bridge                 string          `json:"bridge"`
	IsTestnet              bool            `json:"isTestnet"`
	Identifier             string          `json:"identifier,omitzero"`
	PayinAddress           string          `json:"payinAddress"`
	PayoutAddress          string          `json:"payoutAddress"`
	RecipientAddress       string          `json:"recipientAddress"`
	SenderAddress          string          `json:"senderAddress,omitzero"`
	Amount                 decimal.Decimal `json:"amount"`
	ExpectedSendAmount     decimal.Decimal `json:"expectedSendAmount"`
	ExpectedReceiveAmount  decimal.Decimal `json:"expectedReceiveAmount"`
	AmountSent             decimal.Decimal `json:"amountSent"`
	AmountReceived         decimal.Decimal `json:"amountReceived"`
	PayinHash              string          `json:"payinHash,omitzero"`
	FirstBridgeHash        string          `json:"firstBridgeHash,omitzero"`
	SecondBridgeHash       string          `json:"secondBridgeHash,omitzero"`
	InternalTransferHash   string          `json:"internalTransferHash,omitzero"`
	TransferToReceiverHash string          `json:"transferToReceiverHash,omitzero"`
	RefundHash             string          `json:"refundHash,omitzero"`
	FailureReason          string          `json:"failureReason,omitzero"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// NewView projects t to its public fields.
func NewView(t *Transfer) *View {
	return &View{
		TxID:                   t.TxID,
		Status:                 t.Status,
		FromCurrency:           t.FromCurrency,
		ToCurrency:             t.ToCurrency,
		Bridge:                 t.Bridge,
		IsTestnet:              t.IsTestnet,
		Identifier:             t.Identifier,
		PayinAddress:           t.PayinAddress,
		PayoutAddress:          t.PayoutAddress,
		RecipientAddress:       t.RecipientAddress,
		SenderAddress:          t.SenderAddress,
		Amount:                 t.Amount,
		ExpectedSendAmount:     t.ExpectedSendAmount,
		ExpectedReceiveAmount:  t.ExpectedReceiveAmount,
		AmountSent:             t.AmountSent,
		AmountReceived:         t.AmountReceived,
		PayinHash:              t.PayinHash,
		FirstBridgeHash:        t.FirstBridgeHash,
		SecondBridgeHash:       t.SecondBridgeHash,
		InternalTransferHash:   t.InternalTransferHash,
		TransferToReceiverHash: t.TransferToReceiverHash,
		RefundHash:             t.RefundHash,
		FailureReason:          t.FailureReason,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

// VerifyRequest is the body of POST /api/v1/transfers/verify
type VerifyRequest struct {
	Network   string `json:"network" validate:"required"`
	TxHash    string `json:"txHash" validate:"required"`
	IsTestnet bool   `json:"isTestnet"`
}

// VerifyResponse describes a transaction found on chain
type VerifyResponse struct {
	Found       bool   `json:"found"`
	Network     string `json:"network"`
	TxHash      string `json:"txHash"`
	From        string `json:"from,omitzero"`
	To          string `json:"to,omitzero"`
	Value       string `json:"value,omitzero"`
	Token       string `json:"token,omitzero"`
	TokenAmount string `json:"tokenAmount,omitzero"`
	BlockNumber uint64 `json:"blockNumber,omitzero"`
	Pending     bool   `json:"pending"`
	Failed      bool   `json:"failed"`
}

// CancelListenerRequest is the body of POST /api/v1/admin/listeners/cancel
type CancelListenerRequest struct {
	TxID        string `json:"txId" validate:"required"`
	Currency    string `json:"currency" validate:"required"`
	Destination string `json:"destination" validate:"required,eth_addr"`
}

// RefundResponse reports a completed refund
type RefundResponse struct {
	TxID       string          `json:"txId"`
	Status     Status          `json:"status"`
	RefundHash string          `json:"refundHash"`
	Amount     decimal.Decimal `json:"amount"`
}
