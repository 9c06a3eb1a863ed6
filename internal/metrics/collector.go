package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh and replay outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector records the authenticated client's request and refresh lifecycle.
// A nil *Collector is valid and records nothing.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	transportErrors prometheus.Counter
	authFailures    *prometheus.CounterVec
	refreshesTotal  *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	replaysTotal    *prometheus.CounterVec
	pendingRequests prometheus.Gauge
	sessionInvalid  prometheus.Counter
}

// NewCollector registers the collector's metrics on registry.
func NewCollector(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)
	return &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_proxy_requests_total",
				Help: "Responses received from the backend by status code and attempt kind",
			},
			[]string{"status_code", "attempt"},
		),
		transportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_proxy_transport_errors_total",
			Help: "Requests that failed before a response was received",
		}),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_proxy_auth_failures_total",
				Help: "Auth failure responses by classification",
			},
			[]string{"kind"},
		),
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_proxy_refreshes_total",
				Help: "Credential refresh calls by outcome",
			},
			[]string{"outcome"},
		),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_proxy_refresh_duration_seconds",
			Help:    "Duration of credential refresh calls",
			Buckets: prometheus.DefBuckets,
		}),
		replaysTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_proxy_replays_total",
				Help: "Requests replayed after a refresh, by outcome",
			},
			[]string{"outcome"},
		),
		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_proxy_pending_requests",
			Help: "Requests queued behind an in-flight refresh",
		}),
		sessionInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_proxy_session_invalidations_total",
			Help: "Times the session was declared invalid after a failed refresh",
		}),
	}
}

// RecordResponse counts a backend response.
func (c *Collector) RecordResponse(statusCode int, replay bool) {
	if c == nil {
		return
	}
	attempt := "first"
	if replay {
		attempt = "replay"
	}
	c.requestsTotal.WithLabelValues(strconv.Itoa(statusCode), attempt).Inc()
}

func (c *Collector) RecordTransportError() {
	if c == nil {
		return
	}
	c.transportErrors.Inc()
}

// RecordAuthFailure counts a classified auth failure ("expired" or "permission").
func (c *Collector) RecordAuthFailure(kind string) {
	if c == nil {
		return
	}
	c.authFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRefresh(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.refreshesTotal.WithLabelValues(outcome).Inc()
	c.refreshDuration.Observe(seconds)
}

func (c *Collector) RecordReplay(outcome string) {
	if c == nil {
		return
	}
	c.replaysTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pendingRequests.Set(float64(n))
}

func (c *Collector) RecordSessionInvalid() {
	if c == nil {
		return
	}
	c.sessionInvalid.Inc()
}
