// Package metrics holds the Prometheus collectors of the queue service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueMetrics exposes counters for token issuance and transitions. All
// methods are safe on a nil receiver.
type QueueMetrics struct {
	tokensIssued *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	leaveDays    *prometheus.CounterVec
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medikore",
			Subsystem: "queue",
			Name:      "token_issue_total",
			Help:      "Token issue attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medikore",
			Subsystem: "queue",
			Name:      "token_transition_total",
			Help:      "Applied token status transitions",
		}, []string{"from", "to"}),
		leaveDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medikore",
			Subsystem: "queue",
			Name:      "leave_days_total",
			Help:      "Leave days marked or cancelled",
		}, []string{"action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.tokensIssued, m.transitions, m.leaveDays)
	return m
}

func (m *QueueMetrics) ObserveIssue(outcome string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(outcome).Inc()
}

func (m *QueueMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *QueueMetrics) ObserveLeaveDays(action string, days int) {
	if m == nil || days <= 0 {
		return
	}
	m.leaveDays.WithLabelValues(action).Add(float64(days))
}

// HTTPMetrics records request latency per matched route.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medikore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.duration)
	return m
}

// Middleware observes every request. The route label is the echo route
// pattern, so path parameters do not explode cardinality.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.duration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
