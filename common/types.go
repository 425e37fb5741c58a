package common

import "time"

// flattened block summary written to the telemetry sink
type BlockPoint struct {
	Height    int64
	Hash      string
	NumTxs    int
	ChainID   string
	Timestamp time.Time
}

// flattened transaction summary written to the telemetry sink
type TxPoint struct {
	Hash      string
	Height    int64
	Type      string
	Timestamp time.Time
}

type ValidatorPoint struct {
	OperatorAddress string
	Title           string
	Jailed          bool
	Power           string
}

type DelegationPoint struct {
	DelegatorAddress string
	ValidatorAddress string
	Shares           string
	Amount           string
}
