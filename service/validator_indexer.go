package service

import (
	"context"
	"encoding/base64"
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
	"github.com/shopspring/decimal"
)

const validatorsLoop = "validators"

var ErrUnexpectedPrefix = errors.New("unexpected operator address prefix")

var hundred = decimal.NewFromInt(100)

// Periodically reconciles the validator and delegation tables with the node
type ValidatorIndexer struct {
	node    Node
	store   ValidatorStore
	sink    telemetry.Sink
	guard   *Guard
	metrics *metrics.Metrics
	params  Params
}

func NewValidatorIndexer(
	node Node,
	store ValidatorStore,
	sink telemetry.Sink,
	guard *Guard,
	m *metrics.Metrics,
	params Params,
) *ValidatorIndexer {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &ValidatorIndexer{
		node:    node,
		store:   store,
		sink:    sink,
		guard:   guard,
		metrics: m,
		params:  params,
	}
}

func (vi *ValidatorIndexer) Start(ctx context.Context, pollFrequency time.Duration) {
	ticker := time.NewTicker(pollFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := vi.Tick(ctx); err != nil {
				if errors.Is(err, ErrTickInProgress) {
					log.Debug().Str("loop", validatorsLoop).Msg("already syncing, skipping tick")
					continue
				}
				if ctx.Err() != nil {
					return
				}
				vi.metrics.TickError(validatorsLoop)
				log.Error().Err(err).Msg("failed to sync validators")
			}
		}
	}
}

// chain wide data shared by every validator of one tick
type snapshot struct {
	bondedTokens decimal.Decimal
	window       int64
	// signing infos keyed by valcons address
	signingInfos map[string]nodeclient.SigningInfo
}

// Tick fetches the validator set and upserts every validator and its
// delegations. A failing validator is logged and skipped.
func (vi *ValidatorIndexer) Tick(ctx context.Context) error {
	if !vi.guard.TryAcquire() {
		vi.metrics.TickSkipped(validatorsLoop)
		return ErrTickInProgress
	}
	defer vi.guard.Release()

	validators, err := vi.node.Validators(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch validators: %w", err)
	}
	pool, err := vi.node.StakingPool(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch staking pool: %w", err)
	}
	params, err := vi.node.SlashingParams(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch slashing params: %w", err)
	}
	infos, err := vi.node.SigningInfos(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch signing infos: %w", err)
	}

	snap := snapshot{
		window:       int64(params.SignedBlocksWindow),
		signingInfos: make(map[string]nodeclient.SigningInfo, len(infos)),
	}
	if snap.bondedTokens, err = decimal.NewFromString(pool.BondedTokens); err != nil {
		return fmt.Errorf("invalid bonded tokens %q: %w", pool.BondedTokens, err)
	}
	for _, info := range infos {
		snap.signingInfos[info.Address] = info
	}

	var failed int
	for _, v := range validators {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := vi.syncValidator(ctx, v, snap); err != nil {
			failed++
			log.Error().Err(err).Str("validator", v.OperatorAddress).Msg("failed to sync validator")
		}
	}
	log.Debug().Int("validators", len(validators)).Int("failed", failed).Msg("validator sync finished")
	return nil
}

func (vi *ValidatorIndexer) syncValidator(ctx context.Context, v nodeclient.Validator, snap snapshot) error {
	delegations, err := vi.node.ValidatorDelegations(ctx, v.OperatorAddress)
	if err != nil {
		return fmt.Errorf("failed to fetch delegations: %w", err)
	}
	row, err := vi.validatorRow(v, snap, delegations)
	if err != nil {
		return err
	}
	outcome, err := vi.store.UpsertValidator(ctx, row)
	if err != nil {
		return err
	}
	vi.metrics.Upsert("validators", outcome.String())
	vi.sink.EmitValidator(common.ValidatorPoint{
		OperatorAddress: row.OperatorAddress,
		Title:           row.Title,
		Jailed:          row.Jailed,
		Power:           row.Power,
	})

	for _, d := range delegations {
		del := &db.Delegation{
			DelegatorAddress: d.Delegation.DelegatorAddress,
			ValidatorAddress: d.Delegation.ValidatorAddress,
			Shares:           d.Delegation.Shares,
			Amount:           vi.delegationAmount(d.Balance.Amount),
		}
		outcome, err := vi.store.InsertDelegation(ctx, del)
		if err != nil {
			log.Error().Err(err).
				Str("validator", del.ValidatorAddress).
				Str("delegator", del.DelegatorAddress).
				Msg("failed to store delegation")
			continue
		}
		vi.metrics.Upsert("delegations", outcome.String())
		vi.sink.EmitDelegation(common.DelegationPoint{
			DelegatorAddress: del.DelegatorAddress,
			ValidatorAddress: del.ValidatorAddress,
			Shares:           del.Shares,
			Amount:           del.Amount,
		})
	}
	return nil
}

func (vi *ValidatorIndexer) validatorRow(
	v nodeclient.Validator,
	snap snapshot,
	delegations []nodeclient.DelegationResponse,
) (*db.Validator, error) {
	prefix, _, err := addr.Decode(v.OperatorAddress)
	if err != nil {
		return nil, err
	}
	if vi.params.ValoperPrefix != "" && prefix != vi.params.ValoperPrefix {
		return nil, fmt.Errorf("%w: %s has prefix %q, expected %q",
			ErrUnexpectedPrefix, v.OperatorAddress, prefix, vi.params.ValoperPrefix)
	}
	accAddress, err := addr.Reencode(v.OperatorAddress, vi.params.AccountPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account address: %w", err)
	}
	pubkey, err := base64.StdEncoding.DecodeString(v.ConsensusPubkey.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid consensus pubkey: %w", err)
	}
	consAddress := addr.ConsensusAddressFromPubkey(pubkey)

	row := &db.Validator{
		OperatorAddress:   v.OperatorAddress,
		AccAddress:        accAddress,
		ConsAddress:       consAddress,
		ConsPubKey:        v.ConsensusPubkey.Key,
		Title:             v.Description.Moniker,
		Jailed:            v.Jailed,
		Commission:        fixed(v.Commission.CommissionRates.Rate, 2),
		MaxCommission:     v.Commission.CommissionRates.MaxRate,
		MaxChangeRate:     v.Commission.CommissionRates.MaxChangeRate,
		MinSelfDelegation: v.MinSelfDelegation,
		DelegatorShares:   v.DelegatorShares,
		Power:             v.Tokens,
		Website:           v.Description.Website,
		Details:           v.Description.Details,
		Identity:          v.Description.Identity,
		UnbondingHeight:   int64(v.UnbondingHeight),
		UnbondingTime:     v.UnbondingTime,
		UpdateTime:        v.Commission.UpdateTime,
	}

	tokens, err := decimal.NewFromString(v.Tokens)
	if err != nil {
		return nil, fmt.Errorf("invalid tokens %q: %w", v.Tokens, err)
	}
	if !snap.bondedTokens.IsZero() {
		row.PercentPower = tokens.Div(snap.bondedTokens).Mul(hundred).StringFixed(2)
	}

	valcons, err := addr.HexToBech32(consAddress, vi.params.ValconsPrefix)
	if err != nil {
		return nil, err
	}
	if info, ok := snap.signingInfos[valcons]; ok {
		row.UpTime = UpTime(snap.window, int64(info.MissedBlocksCounter))
	}

	for _, d := range delegations {
		if d.Delegation.DelegatorAddress != accAddress {
			continue
		}
		row.SelfBonded = d.Balance.Amount
		if selfBonded, err := decimal.NewFromString(d.Balance.Amount); err == nil && !tokens.IsZero() {
			row.PercentSelfBonded = selfBonded.Div(tokens).Mul(hundred).StringFixed(2) + "%"
		}
		break
	}
	return row, nil
}

// UpTime is the share of signed blocks in the slashing window, e.g. "99.50%".
// Empty when the window is unknown.
func UpTime(window int64, missed int64) string {
	if window <= 0 {
		return ""
	}
	signed := decimal.NewFromInt(window - missed)
	return signed.Div(decimal.NewFromInt(window)).Mul(hundred).StringFixed(2) + "%"
}

// balance in whole tokens truncated to the configured precision
func (vi *ValidatorIndexer) delegationAmount(balance string) string {
	value, err := vi.params.scale(balance)
	if err != nil {
		return ""
	}
	return value.Truncate(vi.params.AmountPrecision).StringFixed(vi.params.AmountPrecision)
}

func fixed(value string, places int32) string {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	return d.StringFixed(places)
}
