package cli

import (
	"context"
	"sync"

	"github.com/rangesecurity/chainsync/analyzer"
	"github.com/rangesecurity/chainsync/config"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/spf13/cobra"
)

func AnalyzerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyzer",
		Short: "run data analysis tooling",
	}
	lagCmd := &cobra.Command{
		Use:   "sync-lag",
		Short: "report how far the ingested height trails the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			database, err := db.New(cfg.Database.URL, cfg.Database.Debug)
			if err != nil {
				return err
			}
			defer database.Close()
			node, err := nodeclient.NewClient(nodeclient.Config{
				RPCURL:  cfg.Node.RPCURL,
				APIURL:  cfg.Node.APIURL,
				Token:   cfg.Node.Token,
				Timeout: cfg.Node.Timeout,
			})
			if err != nil {
				return err
			}
			analysis := analyzer.NewSyncLagAnalyzer(
				ctx,
				db.NewCursorStore(database, cfg.StartHeight),
				node,
				cfg.Analyzer.MaxLag,
				nil,
			)
			pollFrequency, err := cmd.Flags().GetDuration("poll.frequency")
			if err != nil {
				return err
			}
			if pollFrequency <= 0 {
				pollFrequency = cfg.Analyzer.Interval
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				analysis.Start(pollFrequency)
			}()
			// block until we receive an exit notification
			waitForExit(ctx, cancel)
			// wait for goroutines to terminate
			wg.Wait()
			return nil
		},
	}
	lagCmd.Flags().Duration("poll.frequency", 0, "interval between checks, analyzer.interval when unset")
	cmd.AddCommand(lagCmd)
	return cmd
}
