// Package metrics holds the prometheus collectors of the portal.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	ua "github.com/mileusna/useragent"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amrportal"

type Metrics struct {
	Requests    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Upstream    *prometheus.CounterVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates collectors and registers them to reg.
//
// When reg is nil, collectors are created but not registered. (useful for tests)
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of http requests received",
		}, []string{"route", "method", "status", "user_agent"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to respond to http requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		Upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Number of requests sent to the data API",
		}, []string{"method", "status"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Number of upstream GETs answered from the query cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_misses_total",
			Help:      "Number of upstream GETs not found in the query cache",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration, m.Upstream, m.CacheHits, m.CacheMisses)
	}
	return m
}

// StatusClass is "2XX", "4XX", ... for code. Unknown codes are "unknown".
func StatusClass(code int) string {
	if code < 100 || 599 < code {
		return "unknown"
	}
	return fmt.Sprintf("%dXX", code/100)
}

func UserAgent(r *http.Request) string {
	header := r.Header.Get("User-Agent")
	if header == "" {
		return "unknown"
	}
	if name := ua.Parse(header).Name; name != "" {
		return name
	}
	return "other"
}

// Middleware counts requests per route template, so ids in path do not explode cardinality.
//
// Errors from next are passed to echo's HTTPErrorHandler, and not returned.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			// the error handler decides the status, so it runs here rather than after us.
			if err := next(c); err != nil {
				c.Error(err)
			}

			code := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			class := StatusClass(code)
			req := c.Request()

			m.Requests.With(prometheus.Labels{
				"route": route, "method": req.Method, "status": class, "user_agent": UserAgent(req),
			}).Inc()
			m.Duration.With(prometheus.Labels{
				"route": route, "method": req.Method, "status": class,
			}).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// ObserveUpstream counts a request to the data API. Safe on nil receiver.
func (m *Metrics) ObserveUpstream(method string, code int) {
	if m == nil {
		return
	}
	m.Upstream.With(prometheus.Labels{"method": method, "status": StatusClass(code)}).Inc()
}

// ObserveCache counts a query cache lookup. Safe on nil receiver.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}
