// Package metrics provides Prometheus metrics for the oracle resolver.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolutionsTotal counts price resolutions by final state.
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_resolutions_total",
			Help: "Total number of price resolutions by resolution state",
		},
		[]string{"asset", "state"},
	)

	// ProviderObservationsTotal counts wrapper observations by liveness.
	ProviderObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_provider_observations_total",
			Help: "Total number of provider observations by liveness",
		},
		[]string{"provider", "asset", "live"},
	)

	// ProviderFaultsTotal counts upstream errors, timeouts and panics.
	ProviderFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_provider_faults_total",
			Help: "Total number of provider calls that failed, timed out or panicked",
		},
		[]string{"provider", "reason"},
	)

	// DeviationRejectionsTotal counts observations rejected as anomalous.
	DeviationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_deviation_rejections_total",
			Help: "Total number of observations rejected by a deviation check",
		},
		[]string{"layer", "asset"},
	)

	// AssetFrozen reports the frozen flag per asset (1=frozen, 0=live).
	AssetFrozen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_asset_frozen",
			Help: "Frozen state of an asset (1=frozen, 0=not frozen)",
		},
		[]string{"asset"},
	)

	// ObservationAgeSeconds reports the age of the last resolved observation.
	ObservationAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_observation_age_seconds",
			Help: "Age of the last resolved observation for an asset",
		},
		[]string{"asset"},
	)

	// AdminOperationsTotal counts administrative operations by outcome.
	AdminOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_admin_operations_total",
			Help: "Total number of administrative operations",
		},
		[]string{"operation", "status"},
	)

	// UpstreamCallDuration is a histogram of upstream call latency.
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_upstream_call_duration_seconds",
			Help:    "Duration of upstream provider calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default Prometheus registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ResolutionsTotal,
			ProviderObservationsTotal,
			ProviderFaultsTotal,
			DeviationRejectionsTotal,
			AssetFrozen,
			ObservationAgeSeconds,
			AdminOperationsTotal,
			UpstreamCallDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordResolution records the outcome of a resolution.
func RecordResolution(asset, state string, age time.Duration) {
	ResolutionsTotal.WithLabelValues(asset, state).Inc()
	if age >= 0 {
		ObservationAgeSeconds.WithLabelValues(asset).Set(age.Seconds())
	}
}

// RecordObservation records a wrapper observation.
func RecordObservation(provider, asset string, live bool) {
	ProviderObservationsTotal.WithLabelValues(provider, asset, strconv.FormatBool(live)).Inc()
}

// RecordProviderFault records a failed, timed out or panicking provider call.
func RecordProviderFault(provider, reason string) {
	ProviderFaultsTotal.WithLabelValues(provider, reason).Inc()
}

// RecordDeviationRejection records a deviation check failure.
// layer is "wrapper" or "aggregator".
func RecordDeviationRejection(layer, asset string) {
	DeviationRejectionsTotal.WithLabelValues(layer, asset).Inc()
}

// RecordFrozen records the frozen flag of an asset.
func RecordFrozen(asset string, frozen bool) {
	val := 0.0
	if frozen {
		val = 1.0
	}
	AssetFrozen.WithLabelValues(asset).Set(val)
}

// RecordAdminOperation records an administrative operation.
func RecordAdminOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "rejected"
	}
	AdminOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordUpstreamCall records the latency of an upstream call.
func RecordUpstreamCall(kind string, duration time.Duration) {
	UpstreamCallDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
