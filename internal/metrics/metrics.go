package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the upstream counters.
const (
	OutcomeOK = "ok"
)

// Collector bundles the service's Prometheus metrics. All methods are safe
// to call on a nil *Collector so components can run without metrics in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge

	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	FlightsServed  *prometheus.CounterVec
	FlightFallback *prometheus.CounterVec
	AirportCache   *prometheus.CounterVec
	TokenRefreshes *prometheus.CounterVec
	AssistantCalls *prometheus.CounterVec
}

// NewCollector registers all metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_http_requests_total",
		Help: "Total HTTP requests, labeled by route, method and status code.",
	}, "route", "method", "code"); err != nil {
		return nil, err
	}
	if c.HTTPLatency, err = registerHistogramVec(reg, prometheus.HistogramOpts{
		Name:    "trippilot_http_latency_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, "route"); err != nil {
		return nil, err
	}
	if c.ActiveConnections, err = registerGauge(reg, prometheus.GaugeOpts{
		Name: "trippilot_active_connections",
		Help: "Number of in-flight HTTP requests.",
	}); err != nil {
		return nil, err
	}
	if c.UpstreamRequests, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_upstream_requests_total",
		Help: "Upstream provider calls, labeled by provider, operation and outcome.",
	}, "provider", "op", "outcome"); err != nil {
		return nil, err
	}
	if c.UpstreamLatency, err = registerHistogramVec(reg, prometheus.HistogramOpts{
		Name:    "trippilot_upstream_latency_seconds",
		Help:    "Upstream provider call latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, "provider", "op"); err != nil {
		return nil, err
	}
	if c.FlightsServed, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_flights_served_total",
		Help: "Flight records returned to clients, labeled by origin (live or simulated).",
	}, "origin"); err != nil {
		return nil, err
	}
	if c.FlightFallback, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_flight_fallbacks_total",
		Help: "Simulation fallbacks, labeled by reason.",
	}, "reason"); err != nil {
		return nil, err
	}
	if c.AirportCache, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_airport_cache_total",
		Help: "Airport cache lookups, labeled by result (fresh, refreshed, stale, empty).",
	}, "result"); err != nil {
		return nil, err
	}
	if c.TokenRefreshes, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_token_refreshes_total",
		Help: "OAuth2 token exchanges, labeled by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}
	if c.AssistantCalls, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "trippilot_assistant_calls_total",
		Help: "Language-model calls, labeled by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished HTTP request.
func (c *Collector) ObserveHTTP(route, method string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, method, fmt.Sprint(code)).Inc()
	c.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}

// ConnectionOpened and ConnectionClosed track in-flight requests.
func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.ActiveConnections.Inc()
	}
}

func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.ActiveConnections.Dec()
	}
}

// ObserveUpstream records one upstream call. outcome is OutcomeOK or a failure kind.
func (c *Collector) ObserveUpstream(provider, op, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamRequests.WithLabelValues(provider, op, outcome).Inc()
	c.UpstreamLatency.WithLabelValues(provider, op).Observe(d.Seconds())
}

// FlightsReturned counts records served, split by live or simulated origin.
func (c *Collector) FlightsReturned(simulated bool, n int) {
	if c == nil {
		return
	}
	origin := "live"
	if simulated {
		origin = "simulated"
	}
	c.FlightsServed.WithLabelValues(origin).Add(float64(n))
}

// Fallback counts a switch to simulated data.
func (c *Collector) Fallback(reason string) {
	if c != nil {
		c.FlightFallback.WithLabelValues(reason).Inc()
	}
}

// AirportLookup counts an airport cache lookup result.
func (c *Collector) AirportLookup(result string) {
	if c != nil {
		c.AirportCache.WithLabelValues(result).Inc()
	}
}

// TokenRefresh counts a token exchange outcome.
func (c *Collector) TokenRefresh(outcome string) {
	if c != nil {
		c.TokenRefreshes.WithLabelValues(outcome).Inc()
	}
}

// AssistantCall counts a language-model call outcome.
func (c *Collector) AssistantCall(outcome string) {
	if c != nil {
		c.AssistantCalls.WithLabelValues(outcome).Inc()
	}
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", opts.Name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels ...string) (*prometheus.HistogramVec, error) {
	vec := prometheus.NewHistogramVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", opts.Name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) (prometheus.Gauge, error) {
	gauge := prometheus.NewGauge(opts)
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", opts.Name)
		}
		return nil, err
	}
	return gauge, nil
}
