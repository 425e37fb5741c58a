package analyzer

import (
	"context"
	"time"

	"github.com/rangesecurity/chainsync/metrics"
	"github.com/rs/zerolog/log"
)

type CursorReader interface {
	Cursor(ctx context.Context) (int64, error)
}

type HeightSource interface {
	LatestHeight(ctx context.Context) (int64, error)
}

// SyncLagAnalyzer warns whenever the ingested height falls too far behind the
// node tip
type SyncLagAnalyzer struct {
	cursor  CursorReader
	node    HeightSource
	maxLag  int64
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSyncLagAnalyzer(
	ctx context.Context,
	cursor CursorReader,
	node HeightSource,
	maxLag int64,
	m *metrics.Metrics,
) *SyncLagAnalyzer {
	ctx, cancel := context.WithCancel(ctx)
	return &SyncLagAnalyzer{
		cursor,
		node,
		maxLag,
		m,
		ctx,
		cancel,
	}
}

func (sla *SyncLagAnalyzer) Start(pollFrequency time.Duration) {
	ticker := time.NewTicker(pollFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-sla.ctx.Done():
			return
		case <-ticker.C:
			if _, err := sla.Check(sla.ctx); err != nil && sla.ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to check sync lag")
			}
		}
	}
}

// Check returns how many blocks the cursor trails the node tip by
func (sla *SyncLagAnalyzer) Check(ctx context.Context) (int64, error) {
	current, err := sla.cursor.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	latest, err := sla.node.LatestHeight(ctx)
	if err != nil {
		return 0, err
	}
	lag := latest - current
	if lag < 0 {
		lag = 0
	}
	sla.metrics.SetLag(lag)
	if sla.maxLag > 0 && lag > sla.maxLag {
		log.Warn().Int64("height", current).Int64("latest", latest).Int64("lag", lag).Msg("sync is falling behind")
	} else {
		log.Info().Int64("height", current).Int64("latest", latest).Int64("lag", lag).Msg("checked sync lag")
	}
	return lag, nil
}

func (sla *SyncLagAnalyzer) Stop() {
	sla.cancel()
}
