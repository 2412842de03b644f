package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics tracks dispatch-core and HTTP instrumentation. Each instance owns
// its registry so constructing one per process (or per test) never collides.
type Metrics struct {
	// Booking metrics
	BookingsCreated   prometheus.Counter
	BookingsAccepted  prometheus.Counter
	BookingsExhausted prometheus.Counter
	BookingsCancelled prometheus.Counter

	// Dispatch metrics
	Assignments        prometheus.Counter
	AssignmentFailures prometheus.Counter
	AssignmentLatency  prometheus.Histogram
	Reassignments      prometheus.Counter
	Rejections         *prometheus.CounterVec
	ResponseTimeouts   prometheus.Counter

	// Registry metrics
	HelpersRegistered prometheus.Counter
	HelpersAvailable  prometheus.Gauge

	// System metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *zap.Logger
	server   *http.Server
}

func NewMetrics(logger *zap.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_bookings_created_total",
			Help: "Total number of bookings submitted for dispatch",
		}),
		BookingsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_bookings_accepted_total",
			Help: "Total number of bookings accepted by a helper",
		}),
		BookingsExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_bookings_exhausted_total",
			Help: "Total number of bookings abandoned at the rejection ceiling",
		}),
		BookingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_bookings_cancelled_total",
			Help: "Total number of bookings cancelled externally",
		}),

		Assignments: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_assignments_total",
			Help: "Total number of successful helper assignments",
		}),
		AssignmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_assignment_failures_total",
			Help: "Total number of dispatch attempts finding no helper",
		}),
		AssignmentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hd_assignment_duration_seconds",
			Help:    "Dispatch attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Reassignments: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_reassignments_total",
			Help: "Total number of successful reassignment rounds",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hd_rejections_total",
			Help: "Total offers lost, by outcome",
		}, []string{"outcome"}),
		ResponseTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_response_timeouts_total",
			Help: "Total number of response windows that elapsed",
		}),

		HelpersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "hd_helpers_registered_total",
			Help: "Total number of helpers added to the registry",
		}),
		HelpersAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hd_helpers_available",
			Help: "Number of helpers currently available for dispatch",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hd_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		registry: registry,
		logger:   logger,
	}
}

func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	m.logger.Info("Starting metrics server", zap.String("addr", addr))
	return m.server.ListenAndServe()
}

func (m *Metrics) Stop(ctx context.Context) error {
	if m.server != nil {
		m.logger.Info("Stopping metrics server")
		return m.server.Shutdown(ctx)
	}
	return nil
}

func (m *Metrics) BookingCreated() {
	m.BookingsCreated.Inc()
}

func (m *Metrics) BookingAccepted() {
	m.BookingsAccepted.Inc()
}

func (m *Metrics) BookingExhausted() {
	m.BookingsExhausted.Inc()
}

func (m *Metrics) BookingCancelled() {
	m.BookingsCancelled.Inc()
}

func (m *Metrics) AssignmentCompleted(duration time.Duration) {
	m.Assignments.Inc()
	m.AssignmentLatency.Observe(duration.Seconds())
}

func (m *Metrics) AssignmentFailed() {
	m.AssignmentFailures.Inc()
}

func (m *Metrics) ReassignmentCompleted() {
	m.Reassignments.Inc()
}

func (m *Metrics) RejectionRecorded(outcome string) {
	m.Rejections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ResponseTimeout() {
	m.ResponseTimeouts.Inc()
}

func (m *Metrics) HelperRegistered() {
	m.HelpersRegistered.Inc()
}

func (m *Metrics) SetAvailableHelpers(count float64) {
	m.HelpersAvailable.Set(count)
}

func (m *Metrics) HTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

type HealthChecker struct {
	checks map[string]HealthCheck
	logger *zap.Logger
}

type HealthCheck interface {
	HealthCheck(ctx context.Context) error
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
		logger: logger,
	}
}

func (h *HealthChecker) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]string),
	}

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			status.Checks[name] = "unhealthy: " + err.Error()
			status.Status = "unhealthy"
			h.logger.Warn("Health check failed",
				zap.String("check", name),
				zap.Error(err))
		} else {
			status.Checks[name] = "healthy"
		}
	}

	return status
}
