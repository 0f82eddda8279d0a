package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "soulvault",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulvault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "soulvault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulvault",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by kind and result.",
		},
		[]string{"operation", "status"},
	)

	totalTVL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "soulvault",
			Subsystem: "ledger",
			Name:      "total_tvl_units",
			Help:      "Aggregate TVL across all vaults in smallest units.",
		},
	)

	harvestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulvault",
			Subsystem: "harvest",
			Name:      "runs_total",
			Help:      "Total number of harvest runs by result.",
		},
		[]string{"status"},
	)

	harvestVaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulvault",
			Subsystem: "harvest",
			Name:      "vaults_total",
			Help:      "Total number of per-vault harvest outcomes.",
		},
		[]string{"status"},
	)

	harvestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "soulvault",
			Subsystem: "harvest",
			Name:      "run_duration_seconds",
			Help:      "Duration of harvest runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOps,
		totalTVL,
		harvestRuns,
		harvestVaults,
		harvestDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLedgerOperation counts one ledger operation.
func RecordLedgerOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ledgerOps.WithLabelValues(operation, status).Inc()
}

// SetTotalTVL publishes the aggregate TVL gauge.
func SetTotalTVL(units uint64) {
	totalTVL.Set(float64(units))
}

// RecordHarvestRun records a completed (or failed) harvest run.
func RecordHarvestRun(succeeded, failed int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	harvestRuns.WithLabelValues(status).Inc()
	if err == nil {
		harvestVaults.WithLabelValues("succeeded").Add(float64(succeeded))
		harvestVaults.WithLabelValues("failed").Add(float64(failed))
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	harvestDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "vaults":
		switch len(parts) {
		case 1:
			return "/vaults"
		case 3:
			return "/vaults/:owner/:asset"
		default:
			return "/vaults/:owner/:asset/" + parts[len(parts)-1]
		}
	case "achievements":
		if len(parts) > 1 {
			return "/achievements/:owner"
		}
		return "/achievements"
	default:
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		return "/" + parts[0] + "/" + parts[1]
	}
}
