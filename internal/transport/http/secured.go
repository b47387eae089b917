package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/auth"
	"github.com/telagent/gateway/internal/domain"
)

// SecuredSearch answers a policy-scoped data query. The caller's role
// comes from the bearer token's group claims, not from a client header.
func (h *Handler) SecuredSearch(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
	}

	var q domain.SecuredQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if q.Operation == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "operation is required"})
	}

	claims, err := auth.PeekClaims(token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid bearer token", "detail": err.Error()})
	}

	ctx := c.Request().Context()
	result, err := h.secured.Query(ctx, h.roles.Resolve(claims.Groups), q)
	if err != nil {
		return writeError(c, err)
	}
	if result.Denied {
		return c.JSON(http.StatusForbidden, result)
	}
	return c.JSON(http.StatusOK, result)
}
