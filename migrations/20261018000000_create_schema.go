package migrations

import (
	"context"

	"github.com/rangesecurity/chainsync/db"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, bunDB *bun.DB) error {
		return bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return db.CreateSchema(ctx, tx)
		})
	}, func(ctx context.Context, bunDB *bun.DB) error {
		return bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return db.DropSchema(ctx, tx)
		})
	})
}
