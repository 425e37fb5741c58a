package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rangesecurity/chainsync/config"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/metrics"
	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/rangesecurity/chainsync/service"
	"github.com/rangesecurity/chainsync/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// everything a sync command wires together from the config
type components struct {
	cfg       *config.Config
	db        *db.Database
	cursor    *db.CursorStore
	node      *nodeclient.Client
	telemetry *telemetry.Client
	sink      telemetry.Sink
	metrics   *metrics.Metrics
	guard     *service.Guard
	params    service.Params
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	database, err := db.New(cfg.Database.URL, cfg.Database.Debug)
	if err != nil {
		return nil, err
	}
	node, err := nodeclient.NewClient(nodeclient.Config{
		RPCURL:   cfg.Node.RPCURL,
		APIURL:   cfg.Node.APIURL,
		Token:    cfg.Node.Token,
		Timeout:  cfg.Node.Timeout,
		PageSize: cfg.Node.PageSize,
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	c := &components{
		cfg:     cfg,
		db:      database,
		cursor:  db.NewCursorStore(database, cfg.StartHeight),
		node:    node,
		sink:    telemetry.Nop{},
		metrics: metrics.New(),
		guard:   service.NewGuard(),
		params: service.Params{
			AccountPrefix:   cfg.Chain.AccountPrefix,
			ValoperPrefix:   cfg.Chain.ValoperPrefix,
			ValconsPrefix:   cfg.Chain.ValconsPrefix,
			DenomDivisor:    cfg.Chain.DenomDivisor,
			AmountPrecision: cfg.Chain.AmountPrecision,
			FeePrecision:    cfg.Chain.FeePrecision,
		},
	}
	if cfg.Telemetry.RedisURL != "" {
		client, err := telemetry.New(ctx, telemetry.Options{
			URL:       cfg.Telemetry.RedisURL,
			Prefix:    cfg.Telemetry.Prefix,
			QueueSize: cfg.Telemetry.QueueSize,
			Metrics:   c.metrics,
		})
		if err != nil {
			database.Close()
			return nil, err
		}
		c.telemetry = client
		c.sink = client
	} else {
		log.Warn().Msg("no redis url configured, telemetry disabled")
	}
	return c, nil
}

func (c *components) blockIndexer() *service.BlockIndexer {
	return service.NewBlockIndexer(c.node, c.db, c.cursor, c.sink, c.guard, c.metrics, c.params)
}

func (c *components) validatorIndexer() *service.ValidatorIndexer {
	return service.NewValidatorIndexer(c.node, c.db, c.sink, c.guard, c.metrics, c.params)
}

func (c *components) Close() {
	if c.telemetry != nil {
		if err := c.telemetry.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close telemetry client")
		}
	}
	if err := c.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

// serveMetrics runs the prometheus endpoint in g until ctx is done
func (c *components) serveMetrics(ctx context.Context, g *errgroup.Group) {
	if c.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.metrics.Handler())
	server := &http.Server{
		Addr:              c.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("serving prometheus metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// waitForExit blocks until SIGINT, SIGTERM or SIGQUIT arrives or ctx ends,
// then calls cancel
func waitForExit(ctx context.Context, cancel context.CancelFunc) {
	// Create a channel to receive OS signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigs)
	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("received exit")
	case <-ctx.Done():
	}
	// notify all tasks to stop
	cancel()
}
