// Package mtcstats adapts the teacher repository's stats/prometheus.go
// metric-registration idiom (one *PrometheusFactory holding a
// prometheus.Registry plus a set of vectors, a Make() method returning an
// events.Observer closed over the factory) to this module's own domain
// events (AuthKey creation, migration, flood waits, update gaps, RPC
// errors, reconnects) instead of the teacher's proxy-connection events.
package mtcstats

import (
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtprotogo/core/events"
)

// PrometheusFactory builds one events.Observer per EventStream lane,
// all reporting into the same underlying metric vectors. It can
// optionally serve its own scrape endpoint over a caller-supplied
// listener.
type PrometheusFactory struct {
	httpServer *http.Server

	metricAuthKeysCreated *prometheus.CounterVec
	metricMigrations      *prometheus.CounterVec
	metricFloodWaits      *prometheus.CounterVec
	metricFloodWaitSleep  *prometheus.HistogramVec
	metricGapsDetected    *prometheus.CounterVec
	metricGapsForced      *prometheus.CounterVec
	metricRPCErrors       *prometheus.CounterVec
	metricReconnects      *prometheus.CounterVec
}

// NewPrometheus builds a PrometheusFactory registering every metric under
// metricPrefix, with a scrape handler mounted at httpPath.
func NewPrometheus(metricPrefix, httpPath string) *PrometheusFactory {
	registry := prometheus.NewPedanticRegistry()
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	mux := http.NewServeMux()
	mux.Handle(httpPath, handler)

	f := &PrometheusFactory{
		httpServer: &http.Server{Handler: mux},

		metricAuthKeysCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "auth_keys_created_total",
			Help:      "Number of AuthorizationKeys negotiated, by DC.",
		}, []string{"dc"}),
		metricMigrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "migrations_total",
			Help:      "Number of *_MIGRATE_n reroutes, by source and destination DC.",
		}, []string{"from_dc", "to_dc"}),
		metricFloodWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "flood_waits_total",
			Help:      "Number of FLOOD_WAIT_n responses handled internally, by DC.",
		}, []string{"dc"}),
		metricFloodWaitSleep: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricPrefix,
			Name:      "flood_wait_sleep_seconds",
			Help:      "Seconds slept per internally-handled FLOOD_WAIT_n.",
			Buckets:   []float64{1, 5, 10, 15, 30, 45, 60},
		}, []string{"dc"}),
		metricGapsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "update_gaps_detected_total",
			Help:      "Number of pts/qts gaps detected, by channel (\"account\" for account-scoped).",
		}, []string{"channel"}),
		metricGapsForced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "update_gaps_forced_resync_total",
			Help:      "Number of gap resolutions that required a forced full resync.",
		}, []string{"channel"}),
		metricRPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "rpc_errors_total",
			Help:      "Number of typed RpcErrors surfaced to callers, by DC and error name.",
		}, []string{"dc", "name"}),
		metricReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricPrefix,
			Name:      "reconnects_total",
			Help:      "Number of transport reconnects, by DC.",
		}, []string{"dc"}),
	}

	registry.MustRegister(
		f.metricAuthKeysCreated,
		f.metricMigrations,
		f.metricFloodWaits,
		f.metricFloodWaitSleep,
		f.metricGapsDetected,
		f.metricGapsForced,
		f.metricRPCErrors,
		f.metricReconnects,
	)

	return f
}

// Make builds an events.ObserverFactory-compatible Observer closed over f.
func (f *PrometheusFactory) Make() events.Observer {
	return prometheusObserver{factory: f}
}

// Serve starts an HTTP server on listener, blocking until it returns.
func (f *PrometheusFactory) Serve(listener net.Listener) error {
	return f.httpServer.Serve(listener) //nolint: wrapcheck
}

// Close shuts down the HTTP server, if one was started via Serve.
func (f *PrometheusFactory) Close() error {
	return f.httpServer.Close() //nolint: wrapcheck
}

type prometheusObserver struct {
	events.NoopObserver

	factory *PrometheusFactory
}

func (o prometheusObserver) OnAuthKeyCreated(e events.EventAuthKeyCreated) {
	o.factory.metricAuthKeysCreated.WithLabelValues(strconv.Itoa(e.DC)).Inc()
}

func (o prometheusObserver) OnMigrated(e events.EventMigrated) {
	o.factory.metricMigrations.WithLabelValues(strconv.Itoa(e.FromDC), strconv.Itoa(e.ToDC)).Inc()
}

func (o prometheusObserver) OnFloodWait(e events.EventFloodWait) {
	dc := strconv.Itoa(e.DC)
	o.factory.metricFloodWaits.WithLabelValues(dc).Inc()
	o.factory.metricFloodWaitSleep.WithLabelValues(dc).Observe(float64(e.Seconds))
}

func (o prometheusObserver) OnGapDetected(e events.EventGapDetected) {
	o.factory.metricGapsDetected.WithLabelValues(channelLabel(e.ChannelID)).Inc()
}

func (o prometheusObserver) OnGapForceResync(e events.EventGapForceResync) {
	o.factory.metricGapsForced.WithLabelValues(channelLabel(e.ChannelID)).Inc()
}

func (o prometheusObserver) OnRPCError(e events.EventRPCError) {
	o.factory.metricRPCErrors.WithLabelValues(strconv.Itoa(e.DC), e.Name).Inc()
}

func (o prometheusObserver) OnReconnected(e events.EventReconnected) {
	o.factory.metricReconnects.WithLabelValues(strconv.Itoa(e.DC)).Inc()
}

func channelLabel(channelID int64) string {
	if channelID == 0 {
		return "account"
	}

	return strconv.FormatInt(channelID, 10)
}
