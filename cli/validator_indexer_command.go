package cli

import (
	"context"

	"github.com/rangesecurity/chainsync/config"
	"github.com/rangesecurity/chainsync/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func ValidatorIndexerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validators",
		Short: "periodically reconcile validators and delegations, persisting them in db",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			comps, err := newComponents(ctx, cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			indexer := comps.validatorIndexer()
			once, err := cmd.Flags().GetBool("once")
			if err != nil {
				return err
			}
			if once {
				return indexer.Tick(ctx)
			}

			svc := service.NewService(ctx, nil, indexer)
			svc.Start(cfg.Sync.BlockInterval, cfg.Sync.ValidatorInterval)

			g, gctx := errgroup.WithContext(ctx)
			comps.serveMetrics(gctx, g)
			g.Go(func() error {
				waitForExit(gctx, cancel)
				return nil
			})
			err = g.Wait()
			svc.Close()
			return err
		},
	}
	cmd.Flags().Bool("once", false, "run a single reconciliation pass and exit")
	return cmd
}
