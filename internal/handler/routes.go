package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/internal/middleware"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
)

// RegisterRoutes mounts the API on e
func RegisterRoutes(e *echo.Echo, h *Handler, codec *jwtutil.SessionCodec) {
	e.GET("/health", h.HealthCheck)

	e.GET("/mock/billing-portal", h.MockBillingPortal)
	e.GET("/mock/checkout", h.MockCheckout)

	v1 := e.Group("/v1")

	admin := middleware.AdminGuard(h.cfg.Security.AdminKey)
	projects := v1.Group("/projects")
	projects.POST("", h.CreateProject, admin)
	projects.GET("", h.ListProjects, admin)
	projects.GET("/:id", h.GetProject, admin)
	projects.PATCH("/:id", h.UpdateProject, admin)
	projects.PUT("/:id/secrets", h.PutSecrets, admin)
	projects.GET("/:id/public-config", h.GetPublicConfig)

	session := middleware.SessionAuth(codec)

	auth := v1.Group("/auth")
	auth.POST("/signup", h.SignUp)
	auth.POST("/signin", h.SignIn)
	auth.GET("/me", h.Me, session)

	billing := v1.Group("/billing")
	billing.POST("/webhook", h.Webhook)

	billing.GET("/status", h.BillingStatus, session)
	billing.POST("/portal-session", h.PortalSession, session)
	billing.POST("/checkout-session", h.CheckoutSession, session)
}
