package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// APIKeyDao is a data access object that maps directly to the 'api_keys' table in PostgreSQL.
type APIKeyDao struct {
	bun.BaseModel `bun:"table:api_keys,alias:k"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	Digest        string    `bun:"digest,unique,notnull,type:varchar(64)"`
	Prefix        string    `bun:"prefix,notnull,type:varchar(8)"`
	Label         *string   `bun:"label,type:varchar(128)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the api key store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateKey(ctx context.Context, k *Key, digest string) error {
	dao := &APIKeyDao{
		ID:        k.ID,
		Digest:    digest,
		Prefix:    k.Prefix,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
	}
	if k.Label != "" {
		dao.Label = &k.Label
	}

	if _, err := s.db.NewInsert().Model(dao).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *pgStore) GetKeyByDigest(ctx context.Context, digest string) (*Key, error) {
	dao := new(APIKeyDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("digest = ?", digest).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	k := &Key{
		ID:        dao.ID,
		Prefix:    dao.Prefix,
		CreatedAt: dao.CreatedAt,
		ExpiresAt: dao.ExpiresAt,
	}
	if dao.Label != nil {
		k.Label = *dao.Label
	}
	return k, nil
}
