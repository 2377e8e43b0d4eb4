package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
)

// CreateProject registers a tenant. New projects always start in sandbox mode.
func (h *Handler) CreateProject(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	project, err := h.directory.CreateProject(c.Request().Context(), req.Name)
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordProjectOperation("create")
	logger.FromContext(c).Info("Project created", zap.String("project_id", project.ID))
	return c.JSON(http.StatusOK, echo.Map{
		"id":   project.ID,
		"name": project.Name,
		"mode": project.Mode,
	})
}

// ListProjects returns the newest projects first
func (h *Handler) ListProjects(c echo.Context) error {
	projects, err := h.directory.ListProjects(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordProjectOperation("list")
	return c.JSON(http.StatusOK, echo.Map{"projects": projects})
}

// GetProject returns a project and which secrets it has stored
func (h *Handler) GetProject(c echo.Context) error {
	project, secrets, err := h.directory.GetProjectWithSecrets(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordProjectOperation("get")
	return c.JSON(http.StatusOK, echo.Map{
		"project": project,
		"secrets": secrets,
	})
}

// UpdateProject merges the supplied fields into the project
func (h *Handler) UpdateProject(c echo.Context) error {
	var req struct {
		Name     *string                `json:"name"`
		Mode     *model.ProjectMode     `json:"mode"`
		Theme    map[string]interface{} `json:"theme"`
		Features map[string]interface{} `json:"features"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	project, err := h.directory.UpdateProject(c.Request().Context(), c.Param("id"), directory.ProjectUpdate{
		Name:     req.Name,
		Mode:     req.Mode,
		Theme:    req.Theme,
		Features: req.Features,
	})
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordProjectOperation("update")
	return c.JSON(http.StatusOK, echo.Map{"project": project})
}

// PutSecrets stores any subset of the project's provider secrets
func (h *Handler) PutSecrets(c echo.Context) error {
	var req struct {
		StripeSecret        *string `json:"stripe_secret"`
		StripePublishable   *string `json:"stripe_publishable"`
		StripeWebhookSecret *string `json:"stripe_webhook_secret"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	err := h.directory.PutSecrets(c.Request().Context(), c.Param("id"), directory.SecretsInput{
		StripeSecret:        req.StripeSecret,
		StripePublishable:   req.StripePublishable,
		StripeWebhookSecret: req.StripeWebhookSecret,
	})
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordProjectOperation("put_secrets")
	logger.FromContext(c).Info("Project secrets updated",
		zap.String("project_id", c.Param("id")),
		zap.Bool("stripe_secret", req.StripeSecret != nil),
		zap.Bool("stripe_publishable", req.StripePublishable != nil),
		zap.Bool("stripe_webhook_secret", req.StripeWebhookSecret != nil),
	)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// GetPublicConfig serves the client-safe project view. It requires no credentials.
func (h *Handler) GetPublicConfig(c echo.Context) error {
	cfg, err := h.directory.GetPublicConfig(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}
