package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/middleware"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	ProjectID string `json:"projectId"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// SignUp registers an end user in a project and returns a session
func (h *Handler) SignUp(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}

	res, err := h.identity.SignUp(c.Request().Context(), req.ProjectID, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			prometheus.RecordAuthError("project_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "project_not_found"})
		}
		return respondError(c, err)
	}

	prometheus.RecordSignUp(req.ProjectID)
	return c.JSON(http.StatusOK, sessionResponse(res.Token, res.User))
}

// SignIn exchanges credentials for a session
func (h *Handler) SignIn(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}

	res, err := h.identity.SignIn(c.Request().Context(), req.ProjectID, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordSignIn(req.ProjectID)
	return c.JSON(http.StatusOK, sessionResponse(res.Token, res.User))
}

// Me returns the user behind the bearer session
func (h *Handler) Me(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	user, err := h.identity.Me(c.Request().Context(), claims)
	if err != nil {
		return respondError(c, err)
	}

	logger.FromContext(c).Debug("Session resolved", zap.String("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

func sessionResponse(token string, user *model.User) echo.Map {
	return echo.Map{
		"token": token,
		"user":  user,
	}
}
