package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rangesecurity/chainsync/db"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *db.Database {
	database, err := db.New("sqlite::memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCursorSeedAndAdvance(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	cursor := db.NewCursorStore(database, 100)

	height, err := cursor.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), height)

	// the seed only applies to an empty table
	height, err = db.NewCursorStore(database, 5).Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), height)

	require.NoError(t, cursor.AdvanceCursor(ctx, 101))
	height, err = cursor.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(101), height)
}

func TestAdvanceCursorWithoutSeed(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	cursor := db.NewCursorStore(database, 1)
	require.NoError(t, cursor.AdvanceCursor(ctx, 7))
	height, err := cursor.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), height)
}

func exampleBlock(height int64, hash string) *db.Block {
	return &db.Block{
		BlockHash: hash,
		ChainID:   "aura-testnet",
		Height:    height,
		NumTxs:    2,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		GasUsed:   150000,
		GasWanted: 400000,
	}
}

func exampleTxs(height int64) []*db.Transaction {
	return []*db.Transaction{
		{TxHash: "81BEAD00720F68C81DB776CB728A19AE6EB1670B24F0343354C7D1C507AD336A", Height: height, Type: "delegate", Fee: "0.002500"},
		{TxHash: "B45B8C135A6AA07FB2039F6C3FD21FA4C548CCDE6FA2AAB3477516BDC8C8EBDD", Height: height, Type: "send", Code: 5},
	}
}

func TestStoreBlockIdempotent(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	first := exampleBlock(10, "AA01")
	res, err := database.StoreBlock(ctx, first, exampleTxs(10))
	require.NoError(t, err)
	require.Equal(t, db.Inserted, res.Block)
	require.Equal(t, 2, res.TxsInserted)
	require.Empty(t, res.Duplicates)

	replay := exampleBlock(10, "AA01")
	replay.GasUsed = 1
	res, err = database.StoreBlock(ctx, replay, exampleTxs(10))
	require.NoError(t, err)
	require.Equal(t, db.AlreadyExists, res.Block)
	require.Equal(t, first.ID, replay.ID)
	require.Equal(t, 0, res.TxsInserted)
	require.Len(t, res.Duplicates, 2)

	stored, err := database.GetBlockByHeight(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, int64(150000), stored.GasUsed)
	require.Equal(t, first.ID, stored.ID)

	txs, err := database.GetTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.Equal(t, first.ID, tx.BlockID)
	}
	count, err := database.CountBlocks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStoreEmptyBlock(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	block := exampleBlock(11, "AA02")
	block.NumTxs = 0
	res, err := database.StoreBlock(ctx, block, nil)
	require.NoError(t, err)
	require.Equal(t, db.Inserted, res.Block)

	_, err = database.GetBlockByHeight(ctx, 12)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func exampleValidator() *db.Validator {
	return &db.Validator{
		OperatorAddress: "auravaloper1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lx25um",
		AccAddress:      "aura1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5y5muy9",
		Title:           "node0",
		Commission:      "0.10",
		Power:           "1000000",
		PercentPower:    "50.00",
		SelfBonded:      "500000",
		UpTime:          "99.50%",
		UpdateTime:      time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC),
	}
}

func TestUpsertValidator(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	outcome, err := database.UpsertValidator(ctx, exampleValidator())
	require.NoError(t, err)
	require.Equal(t, db.Inserted, outcome)

	outcome, err = database.UpsertValidator(ctx, exampleValidator())
	require.NoError(t, err)
	require.Equal(t, db.Unchanged, outcome)

	same := exampleValidator()
	same.Power = "1000000.0"
	outcome, err = database.UpsertValidator(ctx, same)
	require.NoError(t, err)
	require.Equal(t, db.Unchanged, outcome)

	changed := exampleValidator()
	changed.Title = "renamed"
	changed.Jailed = true
	outcome, err = database.UpsertValidator(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, db.Updated, outcome)

	stored, err := database.GetValidator(ctx, changed.OperatorAddress)
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Title)
	require.True(t, stored.Jailed)
	require.Equal(t, "99.50%", stored.UpTime)

	validators, err := database.GetValidators(ctx)
	require.NoError(t, err)
	require.Len(t, validators, 1)
}

func TestValidatorDiff(t *testing.T) {
	a := exampleValidator()
	b := exampleValidator()
	require.Empty(t, a.Diff(b))

	b.SelfBonded = ""
	b.Website = "https://example.org"
	require.Equal(t, []string{"self_bonded", "website"}, a.Diff(b))
}

func TestInsertDelegation(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	del := &db.Delegation{
		DelegatorAddress: "aura1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5y5muy9",
		ValidatorAddress: "auravaloper1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lx25um",
		Shares:           "500000.000000000000000000",
		Amount:           "0.5",
	}
	outcome, err := database.InsertDelegation(ctx, del)
	require.NoError(t, err)
	require.Equal(t, db.Inserted, outcome)

	dup := *del
	dup.ID = uuid.Nil
	dup.Amount = "9"
	outcome, err = database.InsertDelegation(ctx, &dup)
	require.NoError(t, err)
	require.Equal(t, db.AlreadyExists, outcome)

	delegations, err := database.GetDelegations(ctx, del.ValidatorAddress)
	require.NoError(t, err)
	require.Len(t, delegations, 1)
	require.Equal(t, "0.5", delegations[0].Amount)
}

func TestStoreBlockHeightConflict(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	_, err := database.StoreBlock(ctx, exampleBlock(5, "AAAA"), nil)
	require.NoError(t, err)

	_, err = database.StoreBlock(ctx, exampleBlock(5, "BBBB"), exampleTxs(5))
	require.ErrorIs(t, err, db.ErrHeightConflict)
	require.Contains(t, err.Error(), "AAAA")
	require.Contains(t, err.Error(), "BBBB")

	stored, err := database.GetBlockByHeight(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "AAAA", stored.BlockHash)
	txs, err := database.GetTransactions(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, txs)
}
