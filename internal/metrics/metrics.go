// Package metrics wires the coordinator's Prometheus instrumentation,
// grounded on the teacher's internal/mux/hub.go registerMetrics: an
// otel meter provider backed by the otel/exporters/prometheus bridge,
// scraped through promhttp on the HTTP read surface's /metrics route.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/USC-NSL/DDB/internal/state"
)

// Metrics holds every instrument the coordinator records against:
// in-flight fanned-out commands, tracker worker queue depth, live
// session count, discovery events observed, and proclet controller
// RPC latency.
type Metrics struct {
	InFlightCommands   metric.Int64UpDownCounter
	TrackerQueueDepth  metric.Int64UpDownCounter
	DiscoveryEvents    metric.Int64Counter
	ProcletRPCDuration metric.Float64Histogram
}

// Init installs a Prometheus-backed otel MeterProvider as the global
// provider and returns a Metrics bound to it. Call once at startup,
// before any instrument is used.
func Init(store *state.Store) (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("ddb/coordinator")

	m := &Metrics{}

	m.InFlightCommands, err = meter.Int64UpDownCounter(
		"ddb_inflight_commands",
		metric.WithDescription("commands fanned out and not yet fully reassembled"),
	)
	if err != nil {
		return nil, err
	}

	m.TrackerQueueDepth, err = meter.Int64UpDownCounter(
		"ddb_tracker_queue_depth",
		metric.WithDescription("bytes-to-process jobs queued across tracker shard workers"),
	)
	if err != nil {
		return nil, err
	}

	m.DiscoveryEvents, err = meter.Int64Counter(
		"ddb_discovery_events_total",
		metric.WithDescription("ServiceInfo events observed from discovery producers"),
	)
	if err != nil {
		return nil, err
	}

	m.ProcletRPCDuration, err = meter.Float64Histogram(
		"ddb_proclet_rpc_duration_seconds",
		metric.WithDescription("proclet controller RPC round-trip latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	if _, err := meter.Int64ObservableGauge(
		"ddb_sessions",
		metric.WithDescription("live coordinator sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(store.SessionCount()))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	return m, nil
}
