package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telecall_ws_connections",
		Help: "Current number of connected signaling clients.",
	})

	SignalMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telecall_signal_messages_total",
		Help: "Total number of signaling envelopes relayed.",
	}, []string{"kind"})

	SignalDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telecall_signal_dropped_total",
		Help: "Total number of signaling envelopes dropped.",
	}, []string{"reason"}) // offline, backpressure, bad_message

	CredentialsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telecall_turn_credentials_issued_total",
		Help: "Total number of relay credentials issued.",
	})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		WSConnections,
		SignalMessages,
		SignalDropped,
		CredentialsIssued,
	)
}
