package service

import (
	"context"

	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/shopspring/decimal"
)

// Node is the subset of the chain node api used by the sync loops,
// implemented by *nodeclient.Client
type Node interface {
	LatestHeight(ctx context.Context) (int64, error)
	Block(ctx context.Context, height int64) (*coretypes.ResultBlock, error)
	Tx(ctx context.Context, hash string) (*nodeclient.TxResponse, error)
	Validators(ctx context.Context) ([]nodeclient.Validator, error)
	StakingPool(ctx context.Context) (*nodeclient.Pool, error)
	SlashingParams(ctx context.Context) (*nodeclient.SlashingParams, error)
	SigningInfos(ctx context.Context) ([]nodeclient.SigningInfo, error)
	ValidatorDelegations(ctx context.Context, operatorAddress string) ([]nodeclient.DelegationResponse, error)
}

// Cursor is implemented by *db.CursorStore
type Cursor interface {
	Cursor(ctx context.Context) (int64, error)
	AdvanceCursor(ctx context.Context, height int64) error
}

// BlockStore is implemented by *db.Database
type BlockStore interface {
	StoreBlock(ctx context.Context, block *db.Block, txs []*db.Transaction) (*db.StoreBlockResult, error)
}

// ValidatorStore is implemented by *db.Database
type ValidatorStore interface {
	UpsertValidator(ctx context.Context, v *db.Validator) (db.Outcome, error)
	InsertDelegation(ctx context.Context, d *db.Delegation) (db.Outcome, error)
}

// chain specific constants used when normalizing node data
type Params struct {
	AccountPrefix string
	// expected prefix of operator addresses, not checked when empty
	ValoperPrefix string
	ValconsPrefix string
	// micro denomination factor, 1000000 for u-prefixed denoms
	DenomDivisor int64
	// decimals kept for delegation amounts
	AmountPrecision int32
	// decimals kept for transaction fees
	FeePrecision int32
}

func DefaultParams() Params {
	return Params{
		AccountPrefix:   "aura",
		ValoperPrefix:   "auravaloper",
		ValconsPrefix:   "auravalcons",
		DenomDivisor:    1000000,
		AmountPrecision: 5,
		FeePrecision:    6,
	}
}

// converts a micro denomination amount into whole tokens
func (p Params) scale(amount string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, err
	}
	if p.DenomDivisor <= 1 {
		return value, nil
	}
	return value.Div(decimal.NewFromInt(p.DenomDivisor)), nil
}
