package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/internal/billing"
	"github.com/leephanna/sign-in-and-billing/internal/credentials"
	"github.com/leephanna/sign-in-and-billing/internal/middleware"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"go.uber.org/zap"
)

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// BillingStatus returns the session user's current subscription
func (h *Handler) BillingStatus(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	status, err := h.billing.GetStatus(c.Request().Context(), claims)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"subscription": status})
}

// PortalSession creates a hosted billing portal session
func (h *Handler) PortalSession(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		ReturnURL string `json:"returnUrl"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	url, err := h.billing.CreatePortalSession(c.Request().Context(), claims, req.ReturnURL)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// CheckoutSession creates a hosted subscription checkout session
func (h *Handler) CheckoutSession(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		PriceID    string `json:"priceId"`
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	url, err := h.billing.CreateCheckoutSession(c.Request().Context(), claims, billing.CheckoutRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// Webhook receives provider deliveries. The body is read raw and never bound,
// since the signature covers the exact bytes sent.
func (h *Handler) Webhook(c echo.Context) error {
	log := logger.FromContext(c)
	projectID := c.QueryParam("project_id")

	limit := h.cfg.Billing.MaxWebhookBytes
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		log.Warn("Failed to read webhook body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": "unreadable body"})
	}
	if int64(len(body)) > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload_too_large"})
	}

	res, err := h.billing.HandleWebhook(c.Request().Context(), projectID, body, c.Request().Header.Get(StripeSignatureHeader))
	if err != nil {
		return respondError(c, err)
	}

	if res.Mode == credentials.ModeMock {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "mode": credentials.ModeMock})
	}

	log.Info("Webhook processed",
		zap.String("project_id", projectID),
		zap.String("event_type", res.EventType),
		zap.String("outcome", res.Outcome),
	)
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
