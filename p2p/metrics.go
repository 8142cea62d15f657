package p2p

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors for the metrics task spawned
// by start() (spec §4.7: "spawns ... metrics task").
type metrics struct {
	channelsConnected *prometheus.GaugeVec
	dialAttempts      *prometheus.CounterVec
	dialFailures      *prometheus.CounterVec
	hostlistTierSize  *prometheus.GaugeVec
}

func newMetrics(namespace string) *metrics {
	if namespace == "" {
		namespace = "darkfi_p2p"
	}
	return &metrics{
		channelsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_connected",
			Help:      "Number of currently connected channels, by session.",
		}, []string{"session"}),
		dialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_attempts_total",
			Help:      "Total outbound dial attempts, by session.",
		}, []string{"session"}),
		dialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Total outbound dial failures, by session.",
		}, []string{"session"}),
		hostlistTierSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hostlist_tier_size",
			Help:      "Number of addresses currently held per hostlist tier.",
		}, []string{"tier"}),
	}
}

// register adds every collector to reg; safe to call once per P2P
// instance (a fresh prometheus.Registry per New avoids AlreadyRegistered
// panics across test instances).
func (m *metrics) register(reg *prometheus.Registry) {
	reg.MustRegister(m.channelsConnected, m.dialAttempts, m.dialFailures, m.hostlistTierSize)
}
