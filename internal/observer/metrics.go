// internal/observer/metrics.go
package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkilldash9x/webgate/internal/webview"
)

// Metrics counts events in Prometheus.
type Metrics struct {
	PolicyDecisions *prometheus.CounterVec
	AuthChallenges  *prometheus.CounterVec
	Navigation      *prometheus.CounterVec
}

// NewMetrics registers the counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PolicyDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webgate",
			Name:      "policy_decisions_total",
			Help:      "Navigation policy decisions by verdict.",
		}, []string{"verdict"}),
		AuthChallenges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webgate",
			Name:      "auth_challenges_total",
			Help:      "Authentication challenges by method and disposition.",
		}, []string{"method", "disposition"}),
		Navigation: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webgate",
			Name:      "navigation_events_total",
			Help:      "Navigation lifecycle events by kind.",
		}, []string{"kind"}),
	}
}

// Observe is a webview.Observer.
func (m *Metrics) Observe(ev webview.Event) {
	switch e := ev.(type) {
	case webview.PolicyDecision:
		m.PolicyDecisions.WithLabelValues(e.Verdict.String()).Inc()
	case webview.AuthChallengeEvent:
		m.AuthChallenges.WithLabelValues(string(e.Challenge.Method), string(e.Disposition)).Inc()
	default:
		m.Navigation.WithLabelValues(string(ev.Kind())).Inc()
	}
}
