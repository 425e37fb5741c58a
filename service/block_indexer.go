package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rangesecurity/chainsync/addr"
	"github.com/rangesecurity/chainsync/common"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/metrics"
	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/rangesecurity/chainsync/telemetry"
	"github.com/rs/zerolog/log"
)

const blocksLoop = "blocks"

// BlockIndexer ingests one block per tick, starting after the stored cursor
type BlockIndexer struct {
	node    Node
	store   BlockStore
	cursor  Cursor
	sink    telemetry.Sink
	guard   *Guard
	metrics *metrics.Metrics
	params  Params
}

func NewBlockIndexer(
	node Node,
	store BlockStore,
	cursor Cursor,
	sink telemetry.Sink,
	guard *Guard,
	m *metrics.Metrics,
	params Params,
) *BlockIndexer {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &BlockIndexer{
		node:    node,
		store:   store,
		cursor:  cursor,
		sink:    sink,
		guard:   guard,
		metrics: m,
		params:  params,
	}
}

// Start runs a tick every pollFrequency until ctx is cancelled
func (bi *BlockIndexer) Start(ctx context.Context, pollFrequency time.Duration) {
	ticker := time.NewTicker(pollFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bi.Tick(ctx); err != nil {
				if errors.Is(err, ErrTickInProgress) {
					log.Debug().Str("loop", blocksLoop).Msg("already syncing, skipping tick")
					continue
				}
				if ctx.Err() != nil {
					return
				}
				bi.metrics.TickError(blocksLoop)
				log.Error().Err(err).Msg("failed to ingest block")
			}
		}
	}
}

// Tick ingests the block after the cursor when the node has it. Any error
// leaves the cursor where it was so the next tick retries the same height.
func (bi *BlockIndexer) Tick(ctx context.Context) error {
	if !bi.guard.TryAcquire() {
		bi.metrics.TickSkipped(blocksLoop)
		return ErrTickInProgress
	}
	defer bi.guard.Release()

	current, err := bi.cursor.Cursor(ctx)
	if err != nil {
		return err
	}
	bi.metrics.SetCursor(current)
	latest, err := bi.node.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest height: %w", err)
	}
	bi.metrics.SetLatest(latest)
	if latest <= current {
		return nil
	}

	target := current + 1
	if err := bi.ingest(ctx, target); err != nil {
		return fmt.Errorf("height %d: %w", target, err)
	}
	if err := bi.cursor.AdvanceCursor(ctx, target); err != nil {
		return err
	}
	bi.metrics.SetCursor(target)
	return nil
}

func (bi *BlockIndexer) ingest(ctx context.Context, height int64) error {
	log.Debug().Int64("height", height).Msg("processing block")
	res, err := bi.node.Block(ctx, height)
	if err != nil {
		return err
	}
	validators, err := bi.node.Validators(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch validators: %w", err)
	}

	header := res.Block.Header
	block := &db.Block{
		BlockHash: res.BlockID.Hash.String(),
		ChainID:   header.ChainID,
		Height:    header.Height,
		NumTxs:    len(res.Block.Txs),
		Timestamp: header.Time,
	}
	if res.Block.LastCommit != nil {
		block.Round = res.Block.LastCommit.Round
	}
	block.Proposer, block.OperatorAddress = resolveProposer(header.ProposerAddress.String(), validators)

	txs := make([]*db.Transaction, 0, len(res.Block.Txs))
	points := make([]common.TxPoint, 0, len(res.Block.Txs))
	for _, rawTx := range res.Block.Txs {
		hash := fmt.Sprintf("%X", rawTx.Hash())
		log.Debug().Int64("height", height).Str("tx.hash", hash).Msg("processing tx")
		resp, err := bi.node.Tx(ctx, hash)
		if err != nil {
			return err
		}
		txType, err := ClassifyTx(resp)
		if err != nil {
			return err
		}
		block.GasUsed += int64(resp.GasUsed)
		block.GasWanted += int64(resp.GasWanted)

		tx, err := bi.transaction(height, hash, txType, header.Time, resp)
		if err != nil {
			return err
		}
		txs = append(txs, tx)
		points = append(points, common.TxPoint{
			Hash:      tx.TxHash,
			Height:    height,
			Type:      txType,
			Timestamp: header.Time,
		})
	}

	result, err := bi.store.StoreBlock(ctx, block, txs)
	if err != nil {
		return err
	}
	bi.metrics.Upsert("blocks", result.Block.String())
	bi.metrics.TxsIngested(result.TxsInserted)
	if result.Block == db.AlreadyExists {
		log.Warn().Int64("height", height).Str("block.hash", block.BlockHash).Msg("block already stored")
	}
	for _, hash := range result.Duplicates {
		log.Warn().Int64("height", height).Str("tx.hash", hash).Msg("transaction already stored")
	}

	for _, point := range points {
		bi.sink.EmitTx(point)
	}
	bi.sink.EmitBlock(common.BlockPoint{
		Height:    block.Height,
		Hash:      block.BlockHash,
		NumTxs:    block.NumTxs,
		ChainID:   block.ChainID,
		Timestamp: block.Timestamp,
	})
	return nil
}

func (bi *BlockIndexer) transaction(
	height int64,
	hash string,
	txType string,
	blockTime time.Time,
	resp *nodeclient.TxResponse,
) (*db.Transaction, error) {
	messages, err := json.Marshal(resp.Tx.Body.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages of tx %s: %w", hash, err)
	}
	tx := &db.Transaction{
		TxHash:    hash,
		Height:    height,
		Code:      resp.Code,
		Codespace: resp.Codespace,
		GasUsed:   int64(resp.GasUsed),
		GasWanted: int64(resp.GasWanted),
		Info:      resp.Info,
		RawLog:    resp.RawLog,
		Timestamp: blockTime,
		Tx:        string(resp.Raw),
		Type:      txType,
		Fee:       bi.fee(resp.Tx.AuthInfo.Fee.Amount),
		Messages:  string(messages),
	}
	if resp.Code == 0 {
		tx.Data = resp.Data
	}
	return tx, nil
}

// first fee coin scaled down from its micro denomination
func (bi *BlockIndexer) fee(amount []nodeclient.Coin) string {
	if len(amount) == 0 {
		return ""
	}
	value, err := bi.params.scale(amount[0].Amount)
	if err != nil {
		return ""
	}
	return value.StringFixed(bi.params.FeePrecision)
}

// finds the validator whose consensus key hashes to the proposer address and
// returns its moniker and operator address, both empty without a match
func resolveProposer(proposer string, validators []nodeclient.Validator) (string, string) {
	for _, v := range validators {
		pubkey, err := base64.StdEncoding.DecodeString(v.ConsensusPubkey.Key)
		if err != nil {
			continue
		}
		if addr.ConsensusAddressFromPubkey(pubkey) == proposer {
			return v.Description.Moniker, v.OperatorAddress
		}
	}
	return "", ""
}
