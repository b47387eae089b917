package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/telagent/gateway/internal/domain"
)

// SendAsUser sends a mail on behalf of the bearer-token holder.
func (h *Handler) SendAsUser(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
	}

	var draft domain.EmailDraft
	if err := c.Bind(&draft); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	if err := h.service.SendAsUser(ctx, token, draft); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "sent",
		"recipients": draft.Recipients,
		"subject":    draft.Subject,
	})
}

// ScheduleAsUser creates a calendar event on behalf of the bearer-token
// holder.
func (h *Handler) ScheduleAsUser(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
	}

	var draft domain.MeetingDraft
	if err := c.Bind(&draft); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	event, err := h.service.ScheduleAsUser(ctx, token, &draft)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       true,
		"subject":  draft.Subject,
		"start":    draft.Start,
		"end":      draft.End,
		"timeZone": draft.TimeZone,
		"webLink":  event.WebLink,
		"joinUrl":  event.JoinURL,
		"iCalUId":  event.ICalUID,
	})
}
