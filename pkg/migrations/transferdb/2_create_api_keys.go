package transferdb

import (
	"context"
	"log"

	"github.com/chainsafe/escrow-bridge/pkg/apikey"
	mghelper "github.com/chainsafe/escrow-bridge/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating api_keys table...")
		if err := mghelper.CreateSchema(ctx, db, &apikey.APIKeyDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &apikey.APIKeyDao{}, "expires_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping api_keys table...")
		return mghelper.DropTables(ctx, db, &apikey.APIKeyDao{})
	})
}
