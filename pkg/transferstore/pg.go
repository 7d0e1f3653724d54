package transferstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/chainsafe/escrow-bridge/pkg/transfer"
)

type txKey struct{}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the transfer ledger
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// idb returns the transaction carried by ctx, or the pool.
func (s *pgStore) idb(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return s.db
}

func (s *pgStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *pgStore) CreateTransfer(ctx context.Context, t *transfer.Transfer) error {
	dao := toTransferDao(t)

	_, err := s.idb(ctx).NewInsert().
		Model(dao).
		Returning("created_at, updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	t.CreatedAt = dao.CreatedAt
	t.UpdatedAt = dao.UpdatedAt
	return nil
}

func (s *pgStore) GetTransfer(ctx context.Context, txID string, opts ...QueryOption) (*transfer.Transfer, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	dao := new(TransferDao)
	query := s.idb(ctx).NewSelect().
		Model(dao).
		Where("tx_id = ?", txID)
	if options.ForUpdate {
		query = query.For("UPDATE")
	}

	err := query.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}

	return toTransfer(dao), nil
}

func (s *pgStore) UpdateTransfer(ctx context.Context, txID string, from transfer.Status, upd transfer.Update) error {
	q := s.idb(ctx).NewUpdate().
		Model((*TransferDao)(nil)).
		Set("updated_at = NOW()").
		Where("tx_id = ?", txID).
		Where("status = ?", string(from))

	if upd.Status != nil {
		q = q.Set("status = ?", string(*upd.Status))
	}
	if upd.SenderAddress != nil {
		q = q.Set("sender_address = ?", *upd.SenderAddress)
	}
	if upd.AmountSent != nil {
		q = q.Set("amount_sent = ?", upd.AmountSent.String())
	}
	if upd.AmountReceived != nil {
		q = q.Set("amount_received = ?", upd.AmountReceived.String())
	}
	if upd.PlatformFee != nil {
		q = q.Set("platform_fee = ?", upd.PlatformFee.String())
	}
	if upd.FailureReason != nil {
		q = q.Set("failure_reason = ?", *upd.FailureReason)
	}

	// Hash columns are write-once.
	for _, h := range []struct {
		col string
		val *string
	}{
		{"payin_hash", upd.PayinHash},
		{"first_bridge_hash", upd.FirstBridgeHash},
		{"second_bridge_hash", upd.SecondBridgeHash},
		{"internal_transfer_hash", upd.InternalTransferHash},
		{"transfer_to_receiver_hash", upd.TransferToReceiverHash},
		{"refund_hash", upd.RefundHash},
	} {
		if h.val == nil {
			continue
		}
		q = q.Set(h.col+" = ?", *h.val).Where(h.col + " IS NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := s.idb(ctx).NewSelect().
		Model((*TransferDao)(nil)).
		Where("tx_id = ?", txID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check transfer exists: %w", err)
	}
	if !exists {
		return ErrTransferNotFound
	}
	return fmt.Errorf("%w: %s is not in status %s", ErrStatusConflict, txID, from)
}

func (s *pgStore) ListTransfers(ctx context.Context, statuses ...transfer.Status) ([]*transfer.Transfer, error) {
	var daos []TransferDao
	query := s.idb(ctx).NewSelect().
		Model(&daos).
		Order("created_at ASC")
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, st := range statuses {
			vals[i] = string(st)
		}
		query = query.Where("status IN (?)", bun.In(vals))
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	out := make([]*transfer.Transfer, len(daos))
	for i := range daos {
		out[i] = toTransfer(&daos[i])
	}
	return out, nil
}

func (s *pgStore) CountByStatus(ctx context.Context) (map[transfer.Status]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.idb(ctx).NewSelect().
		Model((*TransferDao)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count transfers: %w", err)
	}

	out := make(map[transfer.Status]int, len(rows))
	for _, r := range rows {
		out[transfer.Status(r.Status)] = r.Count
	}
	return out, nil
}
