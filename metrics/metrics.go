// Package metrics exposes session and profile API activity as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the session manager and profile client report to.
type Recorder interface {
	RecordLogin(outcome string)
	RecordRestore(outcome string)
	RecordRefresh(outcome string)
	RecordLogout(outcome string)
	SetLoggedIn(loggedIn bool)
	RecordProfileRequest(operation string, statusCode int, duration time.Duration)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	logins          *prometheus.CounterVec
	restores        *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	loggedIn        prometheus.Gauge
	profileRequests *prometheus.CounterVec
	profileLatency  *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbsession_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbsession_restores_total",
			Help: "Session restore attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbsession_token_refreshes_total",
			Help: "Token refresh checks by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbsession_logouts_total",
			Help: "Logouts by outcome.",
		}, []string{"outcome"}),
		loggedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fbsession_logged_in",
			Help: "1 while a user is logged in.",
		}),
		profileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbsession_profile_requests_total",
			Help: "Profile API requests by operation and status code.",
		}, []string{"operation", "status_code"}),
		profileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fbsession_profile_request_seconds",
			Help:    "Profile API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.logins,
		c.restores,
		c.refreshes,
		c.logouts,
		c.loggedIn,
		c.profileRequests,
		c.profileLatency,
	)
	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRestore(outcome string) {
	c.restores.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLogout(outcome string) {
	c.logouts.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetLoggedIn(loggedIn bool) {
	if loggedIn {
		c.loggedIn.Set(1)
		return
	}
	c.loggedIn.Set(0)
}

// RecordProfileRequest records one profile API call. statusCode 0 means the
// request never got a response.
func (c *Collector) RecordProfileRequest(operation string, statusCode int, duration time.Duration) {
	c.profileRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.profileLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Noop discards everything.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordLogin(string)                              {}
func (Noop) RecordRestore(string)                            {}
func (Noop) RecordRefresh(string)                            {}
func (Noop) RecordLogout(string)                             {}
func (Noop) SetLoggedIn(bool)                                {}
func (Noop) RecordProfileRequest(string, int, time.Duration) {}

// Handler serves the registry for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
