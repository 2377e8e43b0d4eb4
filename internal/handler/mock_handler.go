package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
)

// MockBillingPortal is where mock-mode portal sessions point
func (h *Handler) MockBillingPortal(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"mode":    config.BillingModeMock,
		"message": "This is a placeholder billing portal. Configure Stripe keys (platform test or project live) and set the billing mode to STRIPE for real portal sessions.",
	})
}

// MockCheckout is where mock-mode checkout sessions point
func (h *Handler) MockCheckout(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ok":         true,
		"mode":       config.BillingModeMock,
		"message":    "This is a placeholder checkout session. Configure Stripe to generate a real Checkout URL.",
		"project_id": c.QueryParam("project_id"),
		"price":      c.QueryParam("price"),
	})
}
