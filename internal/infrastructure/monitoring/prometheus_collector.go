package monitoring

import (
	"time"

	"skycast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	broadcastsActive  prometheus.Gauge
	viewersActive     prometheus.Gauge

	broadcastsStarted  *prometheus.CounterVec
	broadcastsEnded    *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	broadcastViewers   *prometheus.GaugeVec
	viewersDenied      *prometheus.CounterVec
	viewersRemoved     *prometheus.CounterVec
	relays             *prometheus.CounterVec
	ledgerCalls        *prometheus.CounterVec
	ledgerCallDuration *prometheus.HistogramVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skycast_connections_active",
			Help: "Number of open signaling connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "skycast_connections_total",
			Help: "Total number of signaling connections accepted",
		}),

		broadcastsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skycast_broadcasts_active",
			Help: "Number of active broadcasts",
		}),

		viewersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skycast_viewers_active",
			Help: "Number of admitted viewers across all broadcasts",
		}),

		broadcastsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_broadcasts_started_total",
			Help: "Broadcasts started by privacy mode",
		}, []string{"privacy_mode"}),

		broadcastsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_broadcasts_ended_total",
			Help: "Broadcasts ended, split by whether the end was forced",
		}, []string{"forced"}),

		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "skycast_broadcast_duration_seconds",
			Help:    "Billed duration of ended broadcasts",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),

		broadcastViewers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skycast_broadcast_viewers",
			Help: "Viewer count of each active broadcast",
		}, []string{"broadcast_id"}),

		viewersDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_viewers_denied_total",
			Help: "Join requests refused, by reason",
		}, []string{"reason"}),

		viewersRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_viewers_removed_total",
			Help: "Viewers removed from broadcasts, by close reason",
		}, []string{"reason"}),

		relays: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_relay_messages_total",
			Help: "Negotiation messages by kind and outcome",
		}, []string{"kind", "outcome"}),

		ledgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skycast_ledger_calls_total",
			Help: "Cost ledger calls by operation and result",
		}, []string{"operation", "result"}),

		ledgerCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skycast_ledger_call_duration_seconds",
			Help:    "Cost ledger call latency including retries",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"operation"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) BroadcastStarted(privacy domain.PrivacyMode) {
	p.broadcastsActive.Inc()
	p.broadcastsStarted.WithLabelValues(string(privacy)).Inc()
}

func (p *PrometheusCollector) BroadcastEnded(forced bool, duration time.Duration) {
	p.broadcastsActive.Dec()
	label := "false"
	if forced {
		label = "true"
	}
	p.broadcastsEnded.WithLabelValues(label).Inc()
	p.broadcastDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) ViewerAdmitted(id domain.BroadcastID, viewers int) {
	p.viewersActive.Inc()
	p.broadcastViewers.WithLabelValues(string(id)).Set(float64(viewers))
}

func (p *PrometheusCollector) ViewerDenied(reason domain.DenyReason) {
	p.viewersDenied.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusCollector) ViewerRemoved(id domain.BroadcastID, reason domain.CloseReason, viewers int) {
	p.viewersActive.Dec()
	p.viewersRemoved.WithLabelValues(string(reason)).Inc()
	if viewers == 0 {
		p.broadcastViewers.DeleteLabelValues(string(id))
		return
	}
	p.broadcastViewers.WithLabelValues(string(id)).Set(float64(viewers))
}

func (p *PrometheusCollector) RelayForwarded(kind domain.RelayKind) {
	p.relays.WithLabelValues(string(kind), "forwarded").Inc()
}

func (p *PrometheusCollector) RelayDropped(kind domain.RelayKind) {
	p.relays.WithLabelValues(string(kind), "dropped").Inc()
}

func (p *PrometheusCollector) LedgerCall(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.ledgerCalls.WithLabelValues(op, result).Inc()
	p.ledgerCallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
