package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainsync"

// Metrics groups the sync engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cursorHeight     prometheus.Gauge
	latestHeight     prometheus.Gauge
	syncLag          prometheus.Gauge
	ticksSkipped     *prometheus.CounterVec
	tickErrors       *prometheus.CounterVec
	txsIngested      prometheus.Counter
	upsertOutcomes   *prometheus.CounterVec
	telemetryDropped *prometheus.CounterVec
	telemetryErrors  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	factory := promauto.With(m.registry)
	m.cursorHeight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cursor_height",
		Help:      "last fully ingested block height",
	})
	m.latestHeight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_latest_height",
		Help:      "latest block height reported by the node",
	})
	m.syncLag = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_lag_blocks",
		Help:      "blocks between the node tip and the cursor",
	})
	m.ticksSkipped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_skipped_total",
		Help:      "ticks skipped because another tick held the guard",
	}, []string{"loop"})
	m.tickErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tick_errors_total",
		Help:      "ticks aborted by an error",
	}, []string{"loop"})
	m.txsIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "txs_ingested_total",
		Help:      "transactions written to the ledger",
	})
	m.upsertOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upsert_outcomes_total",
		Help:      "ledger write outcomes by table",
	}, []string{"table", "outcome"})
	m.telemetryDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_dropped_total",
		Help:      "telemetry points dropped because the queue was full",
	}, []string{"point"})
	m.telemetryErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_errors_total",
		Help:      "telemetry points that failed to write",
	}, []string{"point"})
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetCursor(height int64) {
	if m == nil {
		return
	}
	m.cursorHeight.Set(float64(height))
}

func (m *Metrics) SetLatest(height int64) {
	if m == nil {
		return
	}
	m.latestHeight.Set(float64(height))
}

func (m *Metrics) SetLag(lag int64) {
	if m == nil {
		return
	}
	m.syncLag.Set(float64(lag))
}

func (m *Metrics) TickSkipped(loop string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(loop).Inc()
}

func (m *Metrics) TickError(loop string) {
	if m == nil {
		return
	}
	m.tickErrors.WithLabelValues(loop).Inc()
}

func (m *Metrics) TxsIngested(n int) {
	if m == nil {
		return
	}
	m.txsIngested.Add(float64(n))
}

func (m *Metrics) Upsert(table string, outcome string) {
	if m == nil {
		return
	}
	m.upsertOutcomes.WithLabelValues(table, outcome).Inc()
}

func (m *Metrics) TelemetryDropped(point string) {
	if m == nil {
		return
	}
	m.telemetryDropped.WithLabelValues(point).Inc()
}

func (m *Metrics) TelemetryError(point string) {
	if m == nil {
		return
	}
	m.telemetryErrors.WithLabelValues(point).Inc()
}
