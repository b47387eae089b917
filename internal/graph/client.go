// Package graph performs the two delegated write operations against the
// downstream mail/calendar API, acting as the user.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telagent/gateway/internal/domain"
)

// PrimaryCalendarToken selects the user's default calendar; any other
// calendarId addresses a named calendar.
const PrimaryCalendarToken = "Calendar"

// Client is the downstream API client. Stateless; both write operations
// are one-shot with no dedup of duplicate sends.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type attendee struct {
	EmailAddress emailAddress `json:"emailAddress"`
	Type         string       `json:"type"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// SendMailAsUser sends one HTML mail as the user behind the downstream
// token. Non-2xx responses surface as DownstreamAPIError.
func (c *Client) SendMailAsUser(ctx context.Context, downstreamToken, subject, bodyHTML string, recipients []string) error {
	to := make([]recipient, 0, len(recipients))
	for _, r := range recipients {
		if r != "" {
			to = append(to, recipient{EmailAddress: emailAddress{Address: r}})
		}
	}
	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"subject":      subject,
			"body":         itemBody{ContentType: "HTML", Content: bodyHTML},
			"toRecipients": to,
		},
		"saveToSentItems": true,
	}

	_, err := c.post(ctx, c.baseURL+"/me/sendMail", downstreamToken, payload, nil)
	return err
}

// EventResult is the useful subset of the created calendar event.
type EventResult struct {
	WebLink string `json:"webLink"`
	JoinURL string `json:"joinUrl"`
	ICalUID string `json:"iCalUId"`
}

type eventResponse struct {
	WebLink       string `json:"webLink"`
	ICalUID       string `json:"iCalUId"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

// CreateEventAsUser creates an online meeting as the user. The draft's
// calendarId picks the target calendar; the primary token (or empty)
// means the default calendar endpoint.
func (c *Client) CreateEventAsUser(ctx context.Context, downstreamToken string, draft domain.MeetingDraft) (*EventResult, error) {
	attendees := make([]attendee, 0, len(draft.RequiredAttendees)+len(draft.OptionalAttendees))
	for _, a := range draft.RequiredAttendees {
		if a != "" {
			attendees = append(attendees, attendee{EmailAddress: emailAddress{Address: a}, Type: "required"})
		}
	}
	for _, a := range draft.OptionalAttendees {
		if a != "" {
			attendees = append(attendees, attendee{EmailAddress: emailAddress{Address: a}, Type: "optional"})
		}
	}

	payload := map[string]interface{}{
		"subject":               draft.Subject,
		"body":                  itemBody{ContentType: "HTML", Content: draft.Body},
		"start":                 map[string]string{"dateTime": draft.Start, "timeZone": draft.TimeZone},
		"end":                   map[string]string{"dateTime": draft.End, "timeZone": draft.TimeZone},
		"location":              map[string]string{"displayName": draft.Location},
		"attendees":             attendees,
		"isOnlineMeeting":       true,
		"onlineMeetingProvider": "teamsForBusiness",
	}

	endpoint := c.baseURL + "/me/events"
	calID := strings.TrimSpace(draft.CalendarID)
	if calID != "" && !strings.EqualFold(calID, PrimaryCalendarToken) {
		endpoint = c.baseURL + "/me/calendars/" + calID + "/events"
	}

	headers := map[string]string{
		"Prefer": fmt.Sprintf("outlook.timezone=%q", draft.TimeZone),
	}
	body, err := c.post(ctx, endpoint, downstreamToken, payload, headers)
	if err != nil {
		return nil, err
	}

	var ev eventResponse
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event response: %w", err)
	}
	result := &EventResult{WebLink: ev.WebLink, ICalUID: ev.ICalUID}
	if ev.OnlineMeeting != nil {
		result.JoinURL = ev.OnlineMeeting.JoinURL
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, endpoint, token string, payload interface{}, headers map[string]string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.DownstreamAPIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
