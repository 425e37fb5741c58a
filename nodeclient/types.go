package nodeclient

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Int64 accepts both quoted and bare JSON integers, the REST gateway encodes
// 64 bit values as strings but some nodes return numbers
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*i = Int64(v)
	return nil
}

type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type Description struct {
	Moniker         string `json:"moniker"`
	Identity        string `json:"identity"`
	Website         string `json:"website"`
	SecurityContact string `json:"security_contact"`
	Details         string `json:"details"`
}

type CommissionRates struct {
	Rate          string `json:"rate"`
	MaxRate       string `json:"max_rate"`
	MaxChangeRate string `json:"max_change_rate"`
}

type Commission struct {
	CommissionRates CommissionRates `json:"commission_rates"`
	UpdateTime      time.Time       `json:"update_time"`
}

type PubKey struct {
	Type string `json:"@type"`
	// base64 encoded raw key bytes
	Key string `json:"key"`
}

// entry of /cosmos/staking/v1beta1/validators
type Validator struct {
	OperatorAddress   string      `json:"operator_address"`
	ConsensusPubkey   PubKey      `json:"consensus_pubkey"`
	Jailed            bool        `json:"jailed"`
	Status            string      `json:"status"`
	Tokens            string      `json:"tokens"`
	DelegatorShares   string      `json:"delegator_shares"`
	Description       Description `json:"description"`
	UnbondingHeight   Int64       `json:"unbonding_height"`
	UnbondingTime     time.Time   `json:"unbonding_time"`
	Commission        Commission  `json:"commission"`
	MinSelfDelegation string      `json:"min_self_delegation"`
}

type Pool struct {
	NotBondedTokens string `json:"not_bonded_tokens"`
	BondedTokens    string `json:"bonded_tokens"`
}

type SlashingParams struct {
	SignedBlocksWindow      Int64  `json:"signed_blocks_window"`
	MinSignedPerWindow      string `json:"min_signed_per_window"`
	DowntimeJailDuration    string `json:"downtime_jail_duration"`
	SlashFractionDoubleSign string `json:"slash_fraction_double_sign"`
	SlashFractionDowntime   string `json:"slash_fraction_downtime"`
}

type SigningInfo struct {
	// bech32 consensus address under the validator consensus prefix
	Address             string    `json:"address"`
	StartHeight         Int64     `json:"start_height"`
	IndexOffset         Int64     `json:"index_offset"`
	JailedUntil         time.Time `json:"jailed_until"`
	Tombstoned          bool      `json:"tombstoned"`
	MissedBlocksCounter Int64     `json:"missed_blocks_counter"`
}

type Delegation struct {
	DelegatorAddress string `json:"delegator_address"`
	ValidatorAddress string `json:"validator_address"`
	Shares           string `json:"shares"`
}

type DelegationResponse struct {
	Delegation Delegation `json:"delegation"`
	Balance    Coin       `json:"balance"`
}

// tx_response of /cosmos/tx/v1beta1/txs/{hash}
type TxResponse struct {
	Height    Int64           `json:"height"`
	TxHash    string          `json:"txhash"`
	Codespace string          `json:"codespace"`
	Code      uint32          `json:"code"`
	Data      string          `json:"data"`
	RawLog    string          `json:"raw_log"`
	Info      string          `json:"info"`
	GasWanted Int64           `json:"gas_wanted"`
	GasUsed   Int64           `json:"gas_used"`
	Tx        Tx              `json:"tx"`
	Timestamp string          `json:"timestamp"`
	Events    json.RawMessage `json:"events"`

	// Raw holds the undecoded tx_response object
	Raw json.RawMessage `json:"-"`
}

type Tx struct {
	Body     TxBody   `json:"body"`
	AuthInfo AuthInfo `json:"auth_info"`
}

type TxBody struct {
	Messages []json.RawMessage `json:"messages"`
	Memo     string            `json:"memo"`
}

type AuthInfo struct {
	Fee Fee `json:"fee"`
}

type Fee struct {
	Amount   []Coin `json:"amount"`
	GasLimit Int64  `json:"gas_limit"`
	Payer    string `json:"payer"`
	Granter  string `json:"granter"`
}

// MessageType returns the @type of the i-th body message, empty when absent
func (tx Tx) MessageType(i int) string {
	if i < 0 || i >= len(tx.Body.Messages) {
		return ""
	}
	var msg struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(tx.Body.Messages[i], &msg); err != nil {
		return ""
	}
	return msg.Type
}
