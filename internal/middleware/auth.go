package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
)

const (
	// AdminKeyHeader carries the operator's shared admin secret
	AdminKeyHeader = "X-Harmonia-Admin-Key"

	claimsKey = "session"
)

// SessionAuth requires a valid bearer session and stores its claims on the context
func SessionAuth(codec *jwtutil.SessionCodec) echo.MiddlewareFunc {
	return echomw.KeyAuthWithConfig(echomw.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, c echo.Context) (bool, error) {
			claims := codec.Verify(token)
			if claims == nil {
				return false, nil
			}

			c.Set(claimsKey, claims)
			logger.WithFields(c,
				zap.String("project_id", claims.ProjectID),
				zap.String("user_id", claims.UserID()),
			)
			return true, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				prometheus.RecordAuthError("missing_token")
			} else {
				logger.FromContext(c).Warn("Invalid or expired session token")
				prometheus.RecordAuthError("invalid_token")
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		},
	})
}

// Claims returns the session stored by SessionAuth
func Claims(c echo.Context) (*jwtutil.SessionClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.SessionClaims)
	return claims, ok && claims != nil
}

// AdminGuard checks the admin header against adminKey.
// An empty adminKey leaves admin routes open for local development.
func AdminGuard(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminKey == "" {
				return next(c)
			}

			supplied := c.Request().Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(adminKey)) != 1 {
				logger.FromContext(c).Warn("Rejected admin request", zap.String("path", c.Path()))
				prometheus.RecordAuthError("invalid_admin_key")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
