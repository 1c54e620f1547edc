package api

import (
	"context"
	"net/http"

	"Sherpa/pkg/bus"
	"Sherpa/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the device snapshot as Prometheus gauges. It is fed by the bus.
type Metrics struct {
	registry   *prometheus.Registry
	connected  *prometheus.GaugeVec
	changes    prometheus.Counter
	lastChange prometheus.Gauge
}

// NewMetrics creates a private registry with the device and runtime collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sherpa",
			Name:      "connected_devices",
			Help:      "Devices in the current snapshot by platform and kind.",
		}, []string{"platform", "kind"}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sherpa",
			Name:      "device_changes_total",
			Help:      "Published devices-changed events.",
		}),
		lastChange: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sherpa",
			Name:      "last_device_change_timestamp_seconds",
			Help:      "Unix time of the last devices-changed event.",
		}),
	}

	m.registry.MustRegister(
		m.connected,
		m.changes,
		m.lastChange,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.Observe(types.ConnectedDevicesSnapshot{})
	return m
}

// Name implements bus.Sink
func (m *Metrics) Name() string { return "metrics" }

// Handle implements bus.Sink. A baseline sets the gauges but is not counted as a change.
func (m *Metrics) Handle(ctx context.Context, event bus.Event) error {
	if !event.HasSnapshot() {
		return nil
	}
	m.Observe(event.Snapshot)
	if event.Topic == bus.TopicDevicesBaseline {
		return nil
	}
	m.changes.Inc()
	m.lastChange.Set(float64(event.Timestamp) / 1000)
	return nil
}

// Observe sets the connected gauges without counting a change
func (m *Metrics) Observe(s types.ConnectedDevicesSnapshot) {
	m.connected.WithLabelValues(types.PlatformAndroid, types.KindDevice).Set(float64(len(s.AndroidDevices)))
	m.connected.WithLabelValues(types.PlatformAndroid, types.KindEmulator).Set(float64(len(s.AndroidEmulators)))
	m.connected.WithLabelValues(types.PlatformApple, types.KindDevice).Set(float64(len(s.ApplePhysicalDevices)))
	m.connected.WithLabelValues(types.PlatformApple, types.KindSimulator).Set(float64(len(s.BootedSimulators)))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
