package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// single row watermark, id is always 1
type SyncStatus struct {
	bun.BaseModel `bun:"table:sync_status"`

	ID           int64 `bun:"id,pk"`
	CurrentBlock int64 `bun:"current_block,notnull"`
}

type Block struct {
	bun.BaseModel `bun:"table:blocks"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	BlockHash       string    `bun:"block_hash,unique,notnull"`
	ChainID         string    `bun:"chain_id"`
	Height          int64     `bun:"height,unique,notnull"`
	NumTxs          int       `bun:"num_txs"`
	Timestamp       time.Time `bun:"timestamp"`
	Round           int32     `bun:"round"`
	Proposer        string    `bun:"proposer"`
	OperatorAddress string    `bun:"operator_address"`
	GasUsed         int64     `bun:"gas_used"`
	GasWanted       int64     `bun:"gas_wanted"`
}

type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	TxHash    string    `bun:"tx_hash,unique,notnull"`
	Height    int64     `bun:"height,notnull"`
	BlockID   uuid.UUID `bun:"block_id,type:uuid,notnull"`
	Code      uint32    `bun:"code"`
	Codespace string    `bun:"codespace"`
	Data      string    `bun:"data"`
	GasUsed   int64     `bun:"gas_used"`
	GasWanted int64     `bun:"gas_wanted"`
	Info      string    `bun:"info"`
	RawLog    string    `bun:"raw_log"`
	Timestamp time.Time `bun:"timestamp"`
	// raw tx_response json
	Tx       string `bun:"tx"`
	Type     string `bun:"type"`
	Fee      string `bun:"fee"`
	Messages string `bun:"messages"`
}

type Validator struct {
	bun.BaseModel `bun:"table:validators"`

	ID                uuid.UUID `bun:"id,pk,type:uuid"`
	OperatorAddress   string    `bun:"operator_address,unique,notnull"`
	AccAddress        string    `bun:"acc_address"`
	ConsAddress       string    `bun:"cons_address"`
	ConsPubKey        string    `bun:"cons_pub_key"`
	Title             string    `bun:"title"`
	Jailed            bool      `bun:"jailed"`
	Commission        string    `bun:"commission"`
	MaxCommission     string    `bun:"max_commission"`
	MaxChangeRate     string    `bun:"max_change_rate"`
	MinSelfDelegation string    `bun:"min_self_delegation"`
	DelegatorShares   string    `bun:"delegator_shares"`
	Power             string    `bun:"power"`
	PercentPower      string    `bun:"percent_power"`
	SelfBonded        string    `bun:"self_bonded"`
	PercentSelfBonded string    `bun:"percent_self_bonded"`
	Website           string    `bun:"website"`
	Details           string    `bun:"details"`
	Identity          string    `bun:"identity"`
	UnbondingHeight   int64     `bun:"unbonding_height"`
	UnbondingTime     time.Time `bun:"unbonding_time"`
	UpdateTime        time.Time `bun:"update_time"`
	UpTime            string    `bun:"up_time"`
}

type Delegation struct {
	bun.BaseModel `bun:"table:delegations"`

	ID               uuid.UUID `bun:"id,pk,type:uuid"`
	DelegatorAddress string    `bun:"delegator_address,notnull,unique:delegator_validator"`
	ValidatorAddress string    `bun:"validator_address,notnull,unique:delegator_validator"`
	Shares           string    `bun:"shares"`
	Amount           string    `bun:"amount"`
}

// Models lists every table in creation order
func Models() []interface{} {
	return []interface{}{
		(*SyncStatus)(nil),
		(*Block)(nil),
		(*Transaction)(nil),
		(*Validator)(nil),
		(*Delegation)(nil),
	}
}
