package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Sign-up counter, per project
	SignUpCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_auth_signup_total",
			Help: "Total number of end-user sign-ups",
		},
		[]string{"project_id"},
	)

	// Sign-in counter, per project
	SignInCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_auth_signin_total",
			Help: "Total number of successful end-user sign-ins",
		},
		[]string{"project_id"},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // type can be "invalid_credentials", "invalid_token", "email_in_use", "db_error" etc.
	)

	// Billing error counter
	BillingErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_billing_errors_total",
			Help: "Total number of billing errors",
		},
		[]string{"type"},
	)

	// Billing session counter; mode is MOCK or STRIPE
	BillingSessionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_billing_sessions_total",
			Help: "Total number of portal and checkout sessions created",
		},
		[]string{"kind", "mode"},
	)

	// Webhook event counter
	WebhookEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_billing_webhook_events_total",
			Help: "Total number of provider webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"}, // outcome can be "applied", "ignored", "mock", "rejected"
	)

	// Project operation counter
	ProjectOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_project_operations_total",
			Help: "Total number of administrative project operations",
		},
		[]string{"operation"}, // operation can be "create", "update", "put_secrets" etc.
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harmonia_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harmonia_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harmonia_info",
			Help: "Information about the service",
		},
		[]string{"version", "billing_mode"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(SignUpCounter)
	prometheus.MustRegister(SignInCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(BillingErrorCounter)
	prometheus.MustRegister(BillingSessionCounter)
	prometheus.MustRegister(WebhookEventCounter)
	prometheus.MustRegister(ProjectOperationCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(InfoGauge)
}

// SetInfo publishes the build version and billing mode
func SetInfo(version, billingMode string) {
	InfoGauge.With(prometheus.Labels{"version": version, "billing_mode": billingMode}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations.
// Call the returned func when the operation finishes.
func TrackDBOperation(operation string) func() {
	startTime := time.Now()
	return func() {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(startTime).Seconds())
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordBillingError records a billing error by type
func RecordBillingError(errorType string) {
	BillingErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordSignUp records a new end user in a project
func RecordSignUp(projectID string) {
	SignUpCounter.With(prometheus.Labels{"project_id": projectID}).Inc()
}

// RecordSignIn records a successful sign-in in a project
func RecordSignIn(projectID string) {
	SignInCounter.With(prometheus.Labels{"project_id": projectID}).Inc()
}

// RecordBillingSession records a portal or checkout session by billing mode
func RecordBillingSession(kind, mode string) {
	BillingSessionCounter.With(prometheus.Labels{"kind": kind, "mode": mode}).Inc()
}

// RecordWebhookEvent records a webhook delivery by event type and outcome
func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventCounter.With(prometheus.Labels{"event_type": eventType, "outcome": outcome}).Inc()
}

// RecordProjectOperation records an administrative project operation
func RecordProjectOperation(operation string) {
	ProjectOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}
