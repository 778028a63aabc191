// Package metrics exposes Prometheus instruments for backend calls, loads,
// mutations and connectivity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moneytrack/internal/core"
)

const namespace = "moneytrack"

var connectivityStates = []core.Connectivity{core.Connecting, core.Connected, core.Disconnected}

// Collector implements remote.Observer and services.Metrics. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	requestTime  *prometheus.HistogramVec
	loads        *prometheus.CounterVec
	loadTime     prometheus.Histogram
	mutations    *prometheus.CounterVec
	connectivity *prometheus.GaugeVec
	exports      *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Backend requests by method, endpoint and status code (0 = no response).",
		}, []string{"method", "endpoint", "status"}),
		requestTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "loads_total",
			Help:      "Load cycles by outcome (live, fallback, superseded, canceled).",
		}, []string{"outcome"}),
		loadTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "load_duration_seconds",
			Help:      "Duration of a full load cycle.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "mutations_total",
			Help:      "Create, update and delete calls by result.",
		}, []string{"operation", "result"}),
		connectivity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "connectivity",
			Help:      "1 for the current connectivity state, 0 for the others.",
		}, []string{"state"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "rows_total",
			Help:      "Rows written by export target.",
		}, []string{"target"}),
	}
}

func (c *Collector) ObserveRequest(method, endpoint string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	c.requestTime.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (c *Collector) SetConnectivity(state core.Connectivity) {
	if c == nil {
		return
	}
	for _, s := range connectivityStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.connectivity.WithLabelValues(string(s)).Set(v)
	}
}

func (c *Collector) ObserveLoad(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.loads.WithLabelValues(outcome).Inc()
	c.loadTime.Observe(duration.Seconds())
}

func (c *Collector) ObserveMutation(op string, success bool) {
	if c == nil {
		return
	}
	result := "error"
	if success {
		result = "ok"
	}
	c.mutations.WithLabelValues(op, result).Inc()
}

func (c *Collector) ObserveExport(target string, rows int) {
	if c == nil {
		return
	}
	c.exports.WithLabelValues(target).Add(float64(rows))
}

// Registry is the Gatherer behind Handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
