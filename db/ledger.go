package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ErrHeightConflict is returned when a different block is already stored at
// the same height, e.g. after a chain reset
var ErrHeightConflict = errors.New("block height conflict")

// Outcome reports what an upsert did to the stored row
type Outcome int

const (
	Inserted Outcome = iota
	AlreadyExists
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type StoreBlockResult struct {
	Block Outcome
	// number of transactions written by this call
	TxsInserted int
	// hashes of transactions that were already stored
	Duplicates []string
}

// StoreBlock writes a block and its transactions in one database transaction.
// An existing block with the same hash is reused, duplicate transactions are
// skipped and reported in the result.
func (d *Database) StoreBlock(ctx context.Context, block *Block, txs []*Transaction) (*StoreBlockResult, error) {
	result := &StoreBlockResult{}
	err := d.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result.TxsInserted = 0
		result.Duplicates = nil

		if block.ID == uuid.Nil {
			block.ID = uuid.New()
		}
		res, err := tx.NewInsert().Model(block).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert block %d: %w", block.Height, err)
		}
		if affected(res) > 0 {
			result.Block = Inserted
		} else {
			existing := new(Block)
			err := tx.NewSelect().
				Model(existing).
				Where("height = ?", block.Height).
				WhereOr("block_hash = ?", block.BlockHash).
				Limit(1).
				Scan(ctx)
			if err != nil {
				return fmt.Errorf("failed to load existing block %s: %w", block.BlockHash, notFound(err))
			}
			if existing.BlockHash != block.BlockHash || existing.Height != block.Height {
				return fmt.Errorf("%w: block %s at height %d, stored %s at height %d",
					ErrHeightConflict, block.BlockHash, block.Height, existing.BlockHash, existing.Height)
			}
			block.ID = existing.ID
			result.Block = AlreadyExists
		}

		for _, t := range txs {
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			t.BlockID = block.ID
			res, err := tx.NewInsert().Model(t).On("CONFLICT DO NOTHING").Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert tx %s: %w", t.TxHash, err)
			}
			if affected(res) > 0 {
				result.TxsInserted++
			} else {
				result.Duplicates = append(result.Duplicates, t.TxHash)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertValidator inserts the validator or, when a row with the same operator
// address exists, writes the changed columns in a single update
func (d *Database) UpsertValidator(ctx context.Context, v *Validator) (Outcome, error) {
	var outcome Outcome
	err := d.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(Validator)
		err := tx.NewSelect().Model(existing).Where("operator_address = ?", v.OperatorAddress).Scan(ctx)
		if err != nil && !errors.Is(notFound(err), ErrNotFound) {
			return fmt.Errorf("failed to load validator %s: %w", v.OperatorAddress, err)
		}
		if err != nil {
			if v.ID == uuid.Nil {
				v.ID = uuid.New()
			}
			res, err := tx.NewInsert().Model(v).On("CONFLICT DO NOTHING").Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert validator %s: %w", v.OperatorAddress, err)
			}
			if affected(res) > 0 {
				outcome = Inserted
			} else {
				outcome = AlreadyExists
			}
			return nil
		}

		v.ID = existing.ID
		changed := existing.Diff(v)
		if len(changed) == 0 {
			outcome = Unchanged
			return nil
		}
		if _, err := tx.NewUpdate().Model(v).Column(changed...).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update validator %s: %w", v.OperatorAddress, err)
		}
		outcome = Updated
		return nil
	})
	return outcome, err
}

// Diff returns the columns whose value in next differs from v. Power and
// self bonded amounts compare numerically so "100" and "100.0" are equal.
func (v *Validator) Diff(next *Validator) []string {
	var cols []string
	add := func(col string, changed bool) {
		if changed {
			cols = append(cols, col)
		}
	}
	add("acc_address", v.AccAddress != next.AccAddress)
	add("cons_address", v.ConsAddress != next.ConsAddress)
	add("cons_pub_key", v.ConsPubKey != next.ConsPubKey)
	add("title", v.Title != next.Title)
	add("jailed", v.Jailed != next.Jailed)
	add("commission", v.Commission != next.Commission)
	add("max_commission", v.MaxCommission != next.MaxCommission)
	add("max_change_rate", v.MaxChangeRate != next.MaxChangeRate)
	add("min_self_delegation", v.MinSelfDelegation != next.MinSelfDelegation)
	add("delegator_shares", v.DelegatorShares != next.DelegatorShares)
	add("power", !amountEqual(v.Power, next.Power))
	add("percent_power", v.PercentPower != next.PercentPower)
	add("self_bonded", !amountEqual(v.SelfBonded, next.SelfBonded))
	add("percent_self_bonded", v.PercentSelfBonded != next.PercentSelfBonded)
	add("website", v.Website != next.Website)
	add("details", v.Details != next.Details)
	add("identity", v.Identity != next.Identity)
	add("unbonding_height", v.UnbondingHeight != next.UnbondingHeight)
	add("unbonding_time", !timeEqual(v.UnbondingTime, next.UnbondingTime))
	add("update_time", !timeEqual(v.UpdateTime, next.UpdateTime))
	add("up_time", v.UpTime != next.UpTime)
	return cols
}

// numeric comparison, falls back to the raw strings when either side is not
// a number (including the empty value)
func amountEqual(a, b string) bool {
	x, errA := decimal.NewFromString(a)
	y, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return x.Equal(y)
}

// postgres keeps microseconds
func timeEqual(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

// InsertDelegation stores the delegation unless the (delegator, validator)
// pair is already present
func (d *Database) InsertDelegation(ctx context.Context, del *Delegation) (Outcome, error) {
	if del.ID == uuid.Nil {
		del.ID = uuid.New()
	}
	res, err := d.DB.NewInsert().Model(del).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to insert delegation %s/%s: %w", del.DelegatorAddress, del.ValidatorAddress, err)
	}
	if affected(res) > 0 {
		return Inserted, nil
	}
	return AlreadyExists, nil
}

func (d *Database) GetBlockByHeight(ctx context.Context, height int64) (*Block, error) {
	block := new(Block)
	if err := d.DB.NewSelect().Model(block).Where("height = ?", height).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return block, nil
}

func (d *Database) GetTransactions(ctx context.Context, height int64) (txs []Transaction, err error) {
	err = d.DB.NewSelect().Model(&txs).Where("height = ?", height).Order("tx_hash").Scan(ctx)
	return
}

func (d *Database) GetValidator(ctx context.Context, operatorAddress string) (*Validator, error) {
	v := new(Validator)
	if err := d.DB.NewSelect().Model(v).Where("operator_address = ?", operatorAddress).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (d *Database) GetValidators(ctx context.Context) (validators []Validator, err error) {
	err = d.DB.NewSelect().Model(&validators).Order("operator_address").Scan(ctx)
	return
}

func (d *Database) GetDelegations(ctx context.Context, validatorAddress string) (delegations []Delegation, err error) {
	err = d.DB.NewSelect().
		Model(&delegations).
		Where("validator_address = ?", validatorAddress).
		Order("delegator_address").
		Scan(ctx)
	return
}

func (d *Database) CountBlocks(ctx context.Context) (int, error) {
	return d.DB.NewSelect().Model((*Block)(nil)).Count(ctx)
}

func affected(res interface{ RowsAffected() (int64, error) }) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
