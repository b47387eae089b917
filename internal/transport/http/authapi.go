package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/domain"
)

const sessionCookie = "session_id"

// Login starts the sign-in flow and redirects to the identity provider.
func (h *Handler) Login(c echo.Context) error {
	authURI, err := h.authn.BeginFlow(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, authURI)
}

// Callback completes the sign-in flow: exchanges the code, resolves the
// caller's role from group claims and creates a session.
func (h *Handler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code and state are required"})
	}

	ctx := c.Request().Context()
	token, err := h.authn.CompleteFlow(ctx, code, state)
	if err != nil {
		return writeError(c, err)
	}

	claims, err := h.authn.IdentityFromToken(ctx, token)
	if err != nil {
		return writeError(c, err)
	}
	role := h.roles.Resolve(claims.Groups)

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return writeError(c, err)
	}

	session := &domain.Session{
		SessionID:     uuid.New().String(),
		Authenticated: true,
		Role:          role,
		Token:         token,
		Claims:        claimsJSON,
		CreatedAt:     time.Now(),
	}
	if err := h.sessions.CreateSession(ctx, session); err != nil {
		return writeError(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{
		"session_id": session.SessionID,
		"role":       string(role),
		"name":       claims.Name,
	})
}

// SessionToken returns a currently valid access token for the session,
// refreshing silently when the stored one is stale. A failed refresh
// destroys the whole session; the caller must sign in again.
func (h *Handler) SessionToken(c echo.Context) error {
	sessionID := h.sessionID(c)
	if sessionID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no session"})
	}

	ctx := c.Request().Context()
	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return writeError(c, err)
	}
	if session == nil || !session.Authenticated {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no session"})
	}

	token := session.Token
	if !token.Valid(time.Now()) {
		token, err = h.authn.RefreshSilent(ctx, session.Token)
		if err != nil {
			if delErr := h.sessions.DeleteSession(ctx, sessionID); delErr != nil {
				log.Printf("ERROR: failed to delete session %s: %v", sessionID, delErr)
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "session expired", "detail": err.Error()})
		}
		if err := h.sessions.UpdateSessionToken(ctx, sessionID, token); err != nil {
			return writeError(c, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"access_token": token.AccessToken,
		"expires_at":   token.ExpiresAt,
		"role":         string(session.Role),
	})
}

// Logout destroys the session and hands back the provider sign-out URL.
func (h *Handler) Logout(c echo.Context) error {
	sessionID := h.sessionID(c)
	if sessionID != "" {
		if err := h.sessions.DeleteSession(c.Request().Context(), sessionID); err != nil {
			log.Printf("ERROR: failed to delete session %s: %v", sessionID, err)
		}
	}

	c.SetCookie(&http.Cookie{
		Name:    sessionCookie,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	return c.JSON(http.StatusOK, map[string]string{
		"logout_url": h.authn.LogoutURL(h.config.RedirectURI),
	})
}

// sessionID reads the session id from the cookie, falling back to the
// x-session-id header for non-browser clients.
func (h *Handler) sessionID(c echo.Context) string {
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.Request().Header.Get("x-session-id")
}
