package cli

import (
	"context"

	"github.com/rangesecurity/chainsync/analyzer"
	"github.com/rangesecurity/chainsync/config"
	"github.com/rangesecurity/chainsync/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func SyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "ingest blocks and reconcile validators until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			comps, err := newComponents(ctx, cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			svc := service.NewService(ctx, comps.blockIndexer(), comps.validatorIndexer())
			lag := analyzer.NewSyncLagAnalyzer(ctx, comps.cursor, comps.node, cfg.Analyzer.MaxLag, comps.metrics)

			g, gctx := errgroup.WithContext(ctx)
			svc.Start(cfg.Sync.BlockInterval, cfg.Sync.ValidatorInterval)
			g.Go(func() error {
				lag.Start(cfg.Analyzer.Interval)
				return nil
			})
			comps.serveMetrics(gctx, g)
			g.Go(func() error {
				waitForExit(gctx, cancel)
				return nil
			})

			err = g.Wait()
			// wait for in flight ticks before closing the stores
			svc.Close()
			lag.Stop()
			log.Info().Msg("sync stopped")
			return err
		},
	}
}
