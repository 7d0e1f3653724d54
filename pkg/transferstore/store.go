package transferstore

import (
	"context"
	"errors"

	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

var (
	// ErrTransferNotFound is returned when a lookup finds no matching transfer.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrStatusConflict is returned when a guarded update finds the transfer in
	// another status, or a write-once column already set.
	ErrStatusConflict = errors.New("transfer status conflict")
)

// Store defines the interface for the transfer ledger
type Store interface {
	CreateTransfer(ctx context.Context, t *transfer.Transfer) error
	GetTransfer(ctx context.Context, txID string, opts ...QueryOption) (*transfer.Transfer, error)
	// UpdateTransfer applies upd only if the transfer is currently in status from.
	UpdateTransfer(ctx context.Context, txID string, from transfer.Status, upd transfer.Update) error
	ListTransfers(ctx context.Context, statuses ...transfer.Status) ([]*transfer.Transfer, error)
	CountByStatus(ctx context.Context) (map[transfer.Status]int, error)
	// RunInTx runs fn in a database transaction carried by the context.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// QueryOptions defines options for reading transfers
type QueryOptions struct {
	ForUpdate bool
}

// QueryOption is a functional option for reading transfers
type QueryOption func(*QueryOptions)

// WithForUpdate locks the selected row until the surrounding transaction ends
func WithForUpdate() QueryOption {
	return func(opts *QueryOptions) {
		opts.ForUpdate = true
	}
}
