package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/rangesecurity/chainsync/common"
	"github.com/rangesecurity/chainsync/metrics"
	"github.com/rangesecurity/chainsync/telemetry"
	"github.com/stretchr/testify/require"
)

// sums every sample of the named counter family
func counterTotal(t *testing.T, m *metrics.Metrics, name string) float64 {
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestUnreachableRedisDoesNotBlock(t *testing.T) {
	m := metrics.New()
	client, err := telemetry.New(context.Background(), telemetry.Options{
		URL:       "127.0.0.1:1",
		Prefix:    "aura",
		QueueSize: 1,
		Metrics:   m,
	})
	require.NoError(t, err)

	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	start := time.Now()
	for i := int64(1); i <= 100; i++ {
		client.EmitTx(common.TxPoint{Hash: "TX", Height: i, Type: "send", Timestamp: stamp})
		client.EmitBlock(common.BlockPoint{Height: i, Hash: "ABCD", ChainID: "aura-testnet", Timestamp: stamp})
		client.EmitValidator(common.ValidatorPoint{OperatorAddress: "auravaloper1", Power: "10"})
		client.EmitDelegation(common.DelegationPoint{DelegatorAddress: "aura1", ValidatorAddress: "auravaloper1"})
	}
	require.Less(t, time.Since(start), time.Second)
	require.Positive(t, counterTotal(t, m, "chainsync_telemetry_dropped_total"))

	closed := make(chan error, 1)
	go func() { closed <- client.Close() }()
	select {
	case <-closed:
	case <-time.After(30 * time.Second):
		t.Fatal("close did not return")
	}
	require.Positive(t, counterTotal(t, m, "chainsync_telemetry_errors_total"))
}
