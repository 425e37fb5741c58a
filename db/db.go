package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

var ErrNotFound = errors.New("record not found")

type Database struct {
	DB *bun.DB
}

// New opens the database and makes sure every table exists
func New(url string, debug bool) (*Database, error) {
	bunDB, err := OpenDB(url, debug)
	if err != nil {
		return nil, err
	}
	d := &Database{DB: bunDB}
	if err := d.CreateSchema(context.Background()); err != nil {
		bunDB.Close()
		return nil, err
	}
	return d, nil
}

// OpenDB opens a postgres database, or sqlite when the url starts with
// sqlite: (sqlite::memory: for an in-memory database)
func OpenDB(url string, debug bool) (*bun.DB, error) {
	var bunDB *bun.DB
	if dsn, ok := strings.CutPrefix(url, "sqlite:"); ok {
		dsn = strings.TrimPrefix(dsn, "//")
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		if strings.Contains(dsn, ":memory:") {
			// every connection gets its own in-memory database
			sqldb.SetMaxOpenConns(1)
		}
		bunDB = bun.NewDB(sqldb, sqlitedialect.New())
	} else {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	}
	if debug {
		bunDB.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return bunDB, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

func (d *Database) CreateSchema(ctx context.Context) error {
	return CreateSchema(ctx, d.DB)
}

// CreateSchema creates all tables and secondary indexes when missing
func CreateSchema(ctx context.Context, idb bun.IDB) error {
	for _, model := range Models() {
		q := idb.NewCreateTable().Model(model).IfNotExists()
		if _, ok := model.(*Transaction); ok {
			q = q.ForeignKey(`("block_id") REFERENCES "blocks" ("id") ON DELETE CASCADE`)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	indexes := []struct {
		model  interface{}
		name   string
		column string
	}{
		{(*Transaction)(nil), "transactions_height_idx", "height"},
		{(*Transaction)(nil), "transactions_block_id_idx", "block_id"},
		{(*Delegation)(nil), "delegations_validator_address_idx", "validator_address"},
	}
	for _, idx := range indexes {
		_, err := idb.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropSchema drops every table, dependents first
func DropSchema(ctx context.Context, idb bun.IDB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := idb.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", models[i], err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
