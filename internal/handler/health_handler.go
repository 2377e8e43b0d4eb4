package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"go.uber.org/zap"
)

// HealthCheck handles the health check endpoint.
// ?check=db also pings the database.
func (h *Handler) HealthCheck(c echo.Context) error {
	response := map[string]interface{}{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	}

	if c.QueryParam("check") == "db" {
		log := logger.FromContext(c)

		sqlDB, err := h.db.DB()
		if err != nil {
			log.Error("Database connection error", zap.Error(err))
			response["ok"] = false
			response["db_status"] = "error"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		if err := sqlDB.PingContext(c.Request().Context()); err != nil {
			log.Error("Database ping error", zap.Error(err))
			response["ok"] = false
			response["db_status"] = "error"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response["db_status"] = "ok"
	}

	return c.JSON(http.StatusOK, response)
}
