package transfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusNew             Status = "new"
	StatusWaiting         Status = "waiting"
	StatusOrderCreated    Status = "order_created"
	StatusOasisClaim      Status = "oasis_claim"
	StatusCrossChainClaim Status = "cross_chain_claim"
	StatusReceiverRouting Status = "receiver_routing"
	StatusOrderCompleted  Status = "order_completed"
	StatusFailed          Status = "failed"
	StatusRefunding       Status = "refunding"
	StatusRefunded        Status = "refunded"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusNew,
	StatusWaiting,
	StatusOrderCreated,
	StatusOasisClaim,
	StatusCrossChainClaim,
	StatusReceiverRouting,
	StatusOrderCompleted,
	StatusFailed,
	StatusRefunding,
	StatusRefunded,
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusOrderCompleted || s == StatusRefunded
}

// InFlight reports whether s is a mid-hop state that cannot be resumed safely.
func (s Status) InFlight() bool {
	switch s {
	case StatusOrderCreated, StatusOasisClaim, StatusCrossChainClaim, StatusReceiverRouting:
		return true
	}
	return false
}

// Transfer is one user transfer request and its ledger state.
// Amounts are in human units of the asset.
type Transfer struct {
	TxID                  string
	Status                Status
	FromCurrency          string
	ToCurrency            string
	Bridge                string
	IsTestnet             bool
	Identifier            string
	PayinAddress          string
	PayinWalletEncrypted  string
	PayoutAddress         string
	PayoutWalletEncrypted string
	RecipientAddress      string
	SenderAddress         string

	Amount                decimal.Decimal
	ExpectedSendAmount    decimal.Decimal
	ExpectedReceiveAmount decimal.Decimal
	GasBuffer             decimal.Decimal
	PlatformFee           decimal.Decimal
	AmountSent            decimal.Decimal
	AmountReceived        decimal.Decimal

	PayinHash              string
	FirstBridgeHash        string
	SecondBridgeHash       string
	InternalTransferHash   string
	TransferToReceiverHash string
	RefundHash             string

	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Update is a partial ledger write applied with a status compare-and-swap.
// Nil fields are left untouched; hash fields are written only when still empty.
type Update struct {
	Status                 *Status
	SenderAddress          *string
	AmountSent             *decimal.Decimal
	AmountReceived         *decimal.Decimal
	PlatformFee            *decimal.Decimal
	PayinHash              *string
	FirstBridgeHash        *string
	SecondBridgeHash       *string
	InternalTransferHash   *string
	TransferToReceiverHash *string
	RefundHash             *string
	FailureReason          *string
}

// To sets the target status.
func (u Update) To(s Status) Update {
	u.Status = &s
	return u
}
