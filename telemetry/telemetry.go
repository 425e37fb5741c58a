package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rangesecurity/chainsync/common"
	"github.com/rangesecurity/chainsync/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

// Sink receives best effort points from the sync loops. Implementations must
// not block the caller.
type Sink interface {
	EmitBlock(common.BlockPoint)
	EmitTx(common.TxPoint)
	EmitValidator(common.ValidatorPoint)
	EmitDelegation(common.DelegationPoint)
}

type Options struct {
	// redis://host:port/db url or a bare host:port address
	URL string
	// key prefix of every stream, e.g. "aura" writes to aura:blocks
	Prefix    string
	QueueSize int
	// allows FlushAll
	Unsafe  bool
	Metrics *metrics.Metrics
}

type point struct {
	kind  string
	write func(ctx context.Context) error
}

// Client writes points to redis streams from a single background worker fed
// by a bounded queue, points are dropped when the queue is full
type Client struct {
	unsafe  bool
	rdb     *redis.Client
	prefix  string
	queue   chan point
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, opts Options) (*Client, error) {
	redisOpts := &redis.Options{Addr: opts.URL}
	if strings.Contains(opts.URL, "://") {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		redisOpts = parsed
	}
	rdb := redis.NewClient(redisOpts)
	// Run falls back to EVAL when a script is not cached
	loadCtx, cancelLoad := context.WithTimeout(ctx, writeTimeout)
	defer cancelLoad()
	for _, script := range [2]*redis.Script{BlockScript, TxScript} {
		if err := script.Load(loadCtx, rdb).Err(); err != nil {
			log.Warn().Err(err).Str("addr", redisOpts.Addr).Msg("failed to load telemetry script, points will be retried per write")
			break
		}
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "chainsync"
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		unsafe:  opts.Unsafe,
		rdb:     rdb,
		prefix:  prefix,
		queue:   make(chan point, queueSize),
		metrics: opts.Metrics,
		ctx:     cctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case p := <-c.queue:
			c.write(p)
		case <-c.ctx.Done():
			// flush whatever was queued before close
			for {
				select {
				case p := <-c.queue:
					c.write(p)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(p point) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.write(ctx); err != nil {
		c.metrics.TelemetryError(p.kind)
		log.Warn().Err(err).Str("point", p.kind).Msg("failed to write telemetry point")
	}
}

func (c *Client) enqueue(p point) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	select {
	case c.queue <- p:
	default:
		c.metrics.TelemetryDropped(p.kind)
		log.Warn().Str("point", p.kind).Msg("telemetry queue full, dropping point")
	}
}

func (c *Client) EmitBlock(b common.BlockPoint) {
	c.enqueue(point{kind: "block", write: func(ctx context.Context) error {
		return BlockScript.Run(
			ctx,
			c.rdb,
			nil,
			[]interface{}{
				c.prefix,
				b.Height,
				b.Hash,
				b.NumTxs,
				b.ChainID,
				b.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		).Err()
	}})
}

func (c *Client) EmitTx(tx common.TxPoint) {
	c.enqueue(point{kind: "tx", write: func(ctx context.Context) error {
		return TxScript.Run(
			ctx,
			c.rdb,
			nil,
			[]interface{}{
				c.prefix,
				tx.Height,
				tx.Hash,
				tx.Type,
				tx.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		).Err()
	}})
}

func (c *Client) EmitValidator(v common.ValidatorPoint) {
	c.enqueue(point{kind: "validator", write: func(ctx context.Context) error {
		return c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: c.prefix + ":validators",
			Values: map[string]interface{}{
				"operator_address": v.OperatorAddress,
				"title":            v.Title,
				"jailed":           v.Jailed,
				"power":            v.Power,
			},
		}).Err()
	}})
}

func (c *Client) EmitDelegation(d common.DelegationPoint) {
	c.enqueue(point{kind: "delegation", write: func(ctx context.Context) error {
		return c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: c.prefix + ":delegations",
			Values: map[string]interface{}{
				"delegator_address": d.DelegatorAddress,
				"validator_address": d.ValidatorAddress,
				"shares":            d.Shares,
				"amount":            d.Amount,
			},
		}).Err()
	}})
}

// Close stops accepting points, writes out the queue and closes the redis client
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.rdb.Close()
}

func (c *Client) FlushAll(ctx context.Context) error {
	if c.unsafe {
		return c.rdb.FlushAll(ctx).Err()
	} else {
		return nil
	}
}

func (c *Client) Redis() *redis.Client { return c.rdb }

// Nop discards every point, used when no redis url is configured
type Nop struct{}

func (Nop) EmitBlock(common.BlockPoint)           {}
func (Nop) EmitTx(common.TxPoint)                 {}
func (Nop) EmitValidator(common.ValidatorPoint)   {}
func (Nop) EmitDelegation(common.DelegationPoint) {}
