package service_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cometbft/cometbft/crypto/tmhash"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/cometbft/cometbft/types"
	"github.com/rangesecurity/chainsync/common"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/stretchr/testify/require"
)

const (
	// sha256("tx-one") and sha256("tx-two")
	hashOne = "81BEAD00720F68C81DB776CB728A19AE6EB1670B24F0343354C7D1C507AD336A"
	hashTwo = "B45B8C135A6AA07FB2039F6C3FD21FA4C548CCDE6FA2AAB3477516BDC8C8EBDD"

	pubkeyOne   = "q4Wn0rTX8Y5bV3dmLpB9wq1nKvC2xT6LyX1mQf3hVYo="
	consOne     = "EAB71F6B25F7A0C56CF966D6BABC92294E23FE6A"
	valconsOne  = "auravalcons1a2m376e977sv2m8evmtt40yj998z8ln24ch36d"
	pubkeyTwo   = "ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA="
	consTwo     = "4BA68AA8767BDE72E8C798EE82D1275291CEA73E"
	operatorOne = "auravaloper1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lx25um"
	accountOne  = "aura1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5y5muy9"

	msgDelegate = "/cosmos.staking.v1beta1.MsgDelegate"
)

var (
	blockTime   = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	errNodeDown = errors.New("node unavailable")
)

type fakeNode struct {
	mu          sync.Mutex
	latest      int64
	blocks      map[int64]*coretypes.ResultBlock
	txs         map[string]*nodeclient.TxResponse
	txErr       map[string]error
	blockErr    error
	validators  []nodeclient.Validator
	pool        nodeclient.Pool
	params      nodeclient.SlashingParams
	infos       []nodeclient.SigningInfo
	delegations map[string][]nodeclient.DelegationResponse

	// when set Block signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blocks:      make(map[int64]*coretypes.ResultBlock),
		txs:         make(map[string]*nodeclient.TxResponse),
		txErr:       make(map[string]error),
		delegations: make(map[string][]nodeclient.DelegationResponse),
		pool:        nodeclient.Pool{BondedTokens: "1000000"},
		params:      nodeclient.SlashingParams{SignedBlocksWindow: 10000},
	}
}

func (n *fakeNode) LatestHeight(ctx context.Context) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest, nil
}

func (n *fakeNode) Block(ctx context.Context, height int64) (*coretypes.ResultBlock, error) {
	n.mu.Lock()
	entered, release := n.entered, n.release
	n.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.blockErr != nil {
		return nil, n.blockErr
	}
	block, ok := n.blocks[height]
	if !ok {
		return nil, fmt.Errorf("%w: no block %d", nodeclient.ErrRPC, height)
	}
	return block, nil
}

func (n *fakeNode) Tx(ctx context.Context, hash string) (*nodeclient.TxResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.txErr[hash]; err != nil {
		return nil, err
	}
	tx, ok := n.txs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: tx not found: %s", nodeclient.ErrREST, hash)
	}
	return tx, nil
}

func (n *fakeNode) Validators(ctx context.Context) ([]nodeclient.Validator, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.validators, nil
}

func (n *fakeNode) StakingPool(ctx context.Context) (*nodeclient.Pool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pool := n.pool
	return &pool, nil
}

func (n *fakeNode) SlashingParams(ctx context.Context) (*nodeclient.SlashingParams, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	params := n.params
	return &params, nil
}

func (n *fakeNode) SigningInfos(ctx context.Context) ([]nodeclient.SigningInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.infos, nil
}

func (n *fakeNode) ValidatorDelegations(ctx context.Context, operatorAddress string) ([]nodeclient.DelegationResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delegations[operatorAddress], nil
}

type recordingSink struct {
	mu          sync.Mutex
	blocks      []common.BlockPoint
	txs         []common.TxPoint
	validators  []common.ValidatorPoint
	delegations []common.DelegationPoint
}

func (s *recordingSink) EmitBlock(p common.BlockPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, p)
}

func (s *recordingSink) EmitTx(p common.TxPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, p)
}

func (s *recordingSink) EmitValidator(p common.ValidatorPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators = append(s.validators, p)
}

func (s *recordingSink) EmitDelegation(p common.DelegationPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegations = append(s.delegations, p)
}

func newTestDB(t *testing.T) *db.Database {
	database, err := db.New("sqlite::memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func makeBlock(height int64, proposer []byte, txs ...string) *coretypes.ResultBlock {
	data := make(types.Txs, 0, len(txs))
	for _, tx := range txs {
		data = append(data, types.Tx(tx))
	}
	return &coretypes.ResultBlock{
		BlockID: types.BlockID{Hash: tmhash.Sum([]byte(fmt.Sprintf("block-%d", height)))},
		Block: &types.Block{
			Header: types.Header{
				ChainID:         "aura-testnet",
				Height:          height,
				Time:            blockTime,
				ProposerAddress: proposer,
			},
			Data:       types.Data{Txs: data},
			LastCommit: &types.Commit{Round: 1},
		},
	}
}

func txBody(msgType string) nodeclient.Tx {
	return nodeclient.Tx{
		Body: nodeclient.TxBody{
			Messages: []json.RawMessage{json.RawMessage(fmt.Sprintf(`{"@type":%q,"delegator_address":"aura1x"}`, msgType))},
		},
		AuthInfo: nodeclient.AuthInfo{
			Fee: nodeclient.Fee{Amount: []nodeclient.Coin{{Denom: "uaura", Amount: "2500"}}},
		},
	}
}

func successTx(hash string, action string) *nodeclient.TxResponse {
	return &nodeclient.TxResponse{
		TxHash:    hash,
		Code:      0,
		Data:      "0A1E",
		RawLog:    fmt.Sprintf(`[{"msg_index":0,"log":"","events":[{"type":"coin_spent","attributes":[]},{"type":"message","attributes":[{"key":"action","value":%q},{"key":"module","value":"staking"}]}]}]`, action),
		GasUsed:   100,
		GasWanted: 200,
		Tx:        txBody(msgDelegate),
		Raw:       json.RawMessage(fmt.Sprintf(`{"txhash":%q,"code":0}`, hash)),
	}
}

func failedTx(hash string, msgType string) *nodeclient.TxResponse {
	return &nodeclient.TxResponse{
		TxHash:    hash,
		Code:      5,
		Codespace: "sdk",
		Data:      "ignored",
		RawLog:    "failed to execute message; message index: 0: insufficient funds",
		GasUsed:   100,
		GasWanted: 200,
		Tx:        txBody(msgType),
		Raw:       json.RawMessage(fmt.Sprintf(`{"txhash":%q,"code":5}`, hash)),
	}
}
