package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/internal/billing"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/identity"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
)

// respondError maps a service error to its status and stable error code.
// Unrecognised errors are logged and reported without detail.
func respondError(c echo.Context, err error) error {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": verr.Error()})
	case errors.Is(err, directory.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, identity.ErrEmailInUse):
		prometheus.RecordAuthError("email_in_use")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email_in_use"})
	case errors.Is(err, identity.ErrInvalidCredentials):
		prometheus.RecordAuthError("invalid_credentials")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials"})
	case errors.Is(err, identity.ErrUnauthorized):
		prometheus.RecordAuthError("unauthorized")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, billing.ErrMissingProjectID):
		prometheus.RecordBillingError("missing_project_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_project_id"})
	case errors.Is(err, billing.ErrMissingSignature):
		prometheus.RecordBillingError("missing_signature")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_signature"})
	case errors.Is(err, billing.ErrMissingWebhookSecret):
		prometheus.RecordBillingError("missing_webhook_secret")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_webhook_secret_for_project"})
	case errors.Is(err, billing.ErrInvalidSignature):
		prometheus.RecordBillingError("invalid_signature")
		logger.FromContext(c).Warn("Webhook signature rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_signature"})
	}

	logger.FromContext(c).Error("Request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}

// badRequest reports an unparseable request body
func badRequest(c echo.Context, err error) error {
	logger.FromContext(c).Warn("Failed to parse request", zap.Error(err))
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": "invalid request body"})
}

// HTTPErrorHandler renders echo's own errors (unknown routes, bad methods, oversized bodies)
// in the same shape as handler errors
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := echo.Map{"error": "internal_error"}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch code {
		case http.StatusNotFound:
			body = echo.Map{"error": "not_found"}
		case http.StatusTooManyRequests:
			body = echo.Map{"error": "rate_limited"}
		case http.StatusUnauthorized:
			body = echo.Map{"error": "unauthorized"}
		case http.StatusInternalServerError:
		default:
			body = echo.Map{"error": "bad_request", "message": http.StatusText(code)}
		}
	}
	if code >= http.StatusInternalServerError {
		logger.FromContext(c).Error("Unhandled error", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, body)
}
