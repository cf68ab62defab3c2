package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	ConnectedClients  prometheus.Gauge
	Events            *prometheus.CounterVec
	DroppedDeliveries prometheus.Counter
	PersistedMessages prometheus.Counter
}

// New registers the relay collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "connected_clients",
			Help:      "Realtime connections currently open.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "events_total",
			Help:      "Inbound realtime events by kind and outcome.",
		}, []string{"event", "outcome"}),
		DroppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "dropped_deliveries_total",
			Help:      "Frames not queued because the connection was closing or its buffer was full.",
		}),
		PersistedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "persisted_messages_total",
			Help:      "Chat messages appended to the message store.",
		}),
	}
}
