package http

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/domain"
)

// Chat runs one conversation turn. When the caller has a session and no
// explicit thread id, the turn continues the session's pinned thread.
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	sessionID := h.sessionID(c)
	if req.ThreadID == "" && sessionID != "" {
		if session, err := h.sessions.GetSession(ctx, sessionID); err == nil && session != nil {
			req.ThreadID = session.ThreadID
		}
	}

	resp, err := h.service.Chat(ctx, roleFromHeader(c), req)
	if err != nil {
		return writeError(c, err)
	}

	if sessionID != "" && resp.ThreadID != "" && resp.ThreadID != req.ThreadID {
		if err := h.sessions.UpdateSessionThread(ctx, sessionID, resp.ThreadID); err != nil {
			log.Printf("ERROR: failed to pin thread %s to session %s: %v", resp.ThreadID, sessionID, err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
