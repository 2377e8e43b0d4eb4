package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/v1/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	before := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/v1/ping", http.MethodGet, "204"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	after := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/v1/ping", http.MethodGet, "204"))
	assert.Equal(t, before+1, after)
}

func TestRecordWebhookEvent(t *testing.T) {
	before := testutil.ToFloat64(WebhookEventCounter.WithLabelValues("checkout.session.completed", "applied"))
	RecordWebhookEvent("checkout.session.completed", "applied")
	assert.Equal(t, before+1, testutil.ToFloat64(WebhookEventCounter.WithLabelValues("checkout.session.completed", "applied")))
}

func TestMetricsHandlerExposesRegisteredCollectors(t *testing.T) {
	RecordBillingSession("portal", "MOCK")

	rec := httptest.NewRecorder()
	GetPrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harmonia_billing_sessions_total")
}
