package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send modes as used in metric labels.
const (
	SendModeJSON      = "json"
	SendModePlainText = "plain_text"
)

// Registry update actions as used in metric labels.
const (
	RegistryActionReplace   = "replace"
	RegistryActionRemove    = "remove"
	RegistryActionDelivered = "delivered"
)

// Metrics stores the Prometheus collectors for the relay.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	sendsTotal           *prometheus.CounterVec
	sendFailuresTotal    *prometheus.CounterVec
	sendDuration         *prometheus.HistogramVec
	relayInflight        prometheus.Gauge
	registryUpdatesTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fcm",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fcm",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fcm",
				Name:      "sends_total",
				Help:      "Total number of send attempts by payload mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		sendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fcm",
				Name:      "send_failures_total",
				Help:      "Total number of per-recipient failures by provider reason.",
			},
			[]string{"reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fcm",
				Name:      "send_duration_seconds",
				Help:      "Provider send duration in seconds by payload mode.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"mode"},
		),
		relayInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fcm",
				Name:      "relay_inflight",
				Help:      "Current number of send jobs being relayed.",
			},
		),
		registryUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fcm",
				Name:      "registry_updates_total",
				Help:      "Total number of token registry updates by action.",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sendsTotal,
		m.sendFailuresTotal,
		m.sendDuration,
		m.relayInflight,
		m.registryUpdatesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveSend records one send attempt and its duration.
func (m *Metrics) ObserveSend(mode string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	modeLabel := normalizeMode(mode)

	m.sendsTotal.WithLabelValues(modeLabel, outcomeLabel).Inc()

	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(modeLabel).Observe(seconds)
}

// IncSendFailure counts one recipient-level failure reason.
func (m *Metrics) IncSendFailure(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(reason)
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.sendFailuresTotal.WithLabelValues(reasonLabel).Inc()
}

// AddRegistryUpdates counts token registry updates of one action. A
// single reconciliation report can produce several, so this takes a
// count rather than incrementing.
func (m *Metrics) AddRegistryUpdates(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	actionLabel := strings.TrimSpace(strings.ToLower(action))
	if actionLabel == "" {
		actionLabel = "unknown"
	}
	m.registryUpdatesTotal.WithLabelValues(actionLabel).Add(float64(count))
}

func (m *Metrics) IncRelayInFlight() {
	if m == nil {
		return
	}
	m.relayInflight.Inc()
}

func (m *Metrics) DecRelayInFlight() {
	if m == nil {
		return
	}
	m.relayInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeMode(mode string) string {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
