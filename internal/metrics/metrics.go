// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build more than one.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	LoginAttempts    *prometheus.CounterVec
	RealtimeClients  prometheus.Gauge
	RealtimeEvents   *prometheus.CounterVec
	SchedulerRuns    *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	PDFsRendered     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liftsuite_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liftsuite_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_login_attempts_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liftsuite_realtime_connections",
			Help: "Open realtime websocket connections",
		}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_realtime_events_total",
			Help: "Realtime change events published",
		}, []string{"table", "type"}),
		SchedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_scheduler_runs_total",
			Help: "Scheduler runs by result",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_notifications_total",
			Help: "Notifications created by kind",
		}, []string{"kind"}),
		PDFsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftsuite_pdfs_rendered_total",
			Help: "PDF reports rendered by resource",
		}, []string{"resource"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.LoginAttempts,
		m.RealtimeClients,
		m.RealtimeEvents,
		m.SchedulerRuns,
		m.Notifications,
		m.PDFsRendered,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
