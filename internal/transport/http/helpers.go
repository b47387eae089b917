package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/domain"
)

// roleFromHeader maps the gateway-asserted x-user-role header to a role.
// Anything but the two known roles is treated as unauthorized; agent
// selection still falls back to the default agent for those callers.
func roleFromHeader(c echo.Context) domain.Role {
	switch strings.ToLower(strings.TrimSpace(c.Request().Header.Get("x-user-role"))) {
	case "admin":
		return domain.RoleAdmin
	case "user":
		return domain.RoleUser
	default:
		return domain.RoleUnauthorized
	}
}

// bearerToken extracts the Authorization bearer token, "" when absent.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// writeError maps the error taxonomy to HTTP statuses: validation and
// auth-flow failures 400, configuration 503, everything else 500. Token
// exchange and downstream failures keep their detail in the 500 body.
func writeError(c echo.Context, err error) error {
	var (
		ve *domain.ValidationError
		te *domain.TokenExchangeError
		de *domain.DownstreamAPIError
		ce *domain.ConfigurationError
		fe *domain.AuthFlowError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request", "detail": ve.Error()})
	case errors.As(err, &fe):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "auth flow failed", "detail": fe.Error()})
	case errors.As(err, &te):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token exchange failed", "detail": te.Error()})
	case errors.As(err, &de):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "downstream API error", "detail": de.Error()})
	case errors.As(err, &ce):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "service not configured", "detail": ce.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error", "detail": err.Error()})
	}
}
