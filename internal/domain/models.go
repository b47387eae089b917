// Package domain defines the core domain models for the gateway.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is the application role derived from directory group membership.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleUser         Role = "user"
	RoleUnauthorized Role = "unauthorized"
)

// TokenSet is the credential material held for an authenticated session.
// ExpiresAt is derived at exchange time (now + expires_in); ExpiresIn is
// only kept for tokens that were stored before the absolute stamp existed.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
}

// validityMargin is the safety window reserved before declared expiry.
const validityMargin = 300 * time.Second

// Valid reports whether the token set is usable at the given instant.
// With an absolute expiry the margin is applied against the clock; with
// only expires_in present the raw seconds are compared to the margin.
func (t TokenSet) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if !t.ExpiresAt.IsZero() {
		return now.Before(t.ExpiresAt.Add(-validityMargin))
	}
	if t.ExpiresIn > 0 {
		return t.ExpiresIn > int64(validityMargin/time.Second)
	}
	return false
}

// AuthFlowState is the server-side record of one in-flight authorization
// code flow, keyed by the state nonce. Single use: consumed on completion.
type AuthFlowState struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	AuthURI   string    `json:"auth_uri"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an authenticated caller context.
type Session struct {
	SessionID     string          `json:"session_id"`
	Authenticated bool            `json:"authenticated"`
	Role          Role            `json:"role"`
	Token         TokenSet        `json:"token"`
	Claims        json.RawMessage `json:"claims,omitempty"`
	ThreadID      string          `json:"thread_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Message is one entry in a conversation thread.
type Message struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStatus is the terminal state of an agent run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimedOut  RunStatus = "timed_out"
)

// RunResult is the outcome of driving one run to a terminal state. A
// failed run is data, not an error: the caller renders it inline.
type RunResult struct {
	Status      RunStatus `json:"status"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// Source is one citation attached to an answer. Dedup key is URL when
// present, else "file:<file_id>".
type Source struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Publisher string `json:"publisher"`
	Date      string `json:"date"`
	FileID    string `json:"file_id,omitempty"`
	Quote     string `json:"quote,omitempty"`
}

// DedupKey returns the identity under which duplicate sources collapse.
func (s Source) DedupKey() string {
	if s.URL != "" {
		return s.URL
	}
	return "file:" + s.FileID
}

// Answer is the post-processed result of a turn.
type Answer struct {
	Answer   string   `json:"answer"`
	AnswerMD string   `json:"answer_md"`
	Sources  []Source `json:"sources"`
}

// StringList decodes either a JSON array of strings or a single comma
// or semicolon delimited string. Entries are trimmed; empty ones drop.
type StringList []string

// UnmarshalJSON implements the dual decoding.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = cleanList(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = cleanList(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	}))
	return nil
}

func cleanList(items []string) StringList {
	out := StringList{}
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// EmailDraft is a send-mail action recovered from assistant text.
type EmailDraft struct {
	Subject    string     `json:"subject"`
	BodyHTML   string     `json:"bodyHtml"`
	Recipients StringList `json:"recipients"`
}

// MeetingDraft is a schedule-meeting action recovered from assistant text.
type MeetingDraft struct {
	Subject           string     `json:"subject"`
	Body              string     `json:"body"`
	TimeZone          string     `json:"timeZone"`
	Start             string     `json:"start"`
	End               string     `json:"end"`
	CalendarID        string     `json:"calendarId"`
	RequiredAttendees StringList `json:"requiredAttendees"`
	OptionalAttendees StringList `json:"optionalAttendees"`
	Location          string     `json:"location"`
}

// SecuredQuery is a policy-scoped data lookup.
type SecuredQuery struct {
	Operation       string `json:"operation"`
	Product         string `json:"product,omitempty"`
	RequestedRegion string `json:"requested_region,omitempty"`
}

// Secured query operations.
const (
	OpPopularProduct = "popular_product"
	OpProductRevenue = "product_revenue"
)

// SecuredResult is the backend response for a secured query.
type SecuredResult struct {
	Answer   string          `json:"answer,omitempty"`
	AnswerMD string          `json:"answer_md,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Denied   bool            `json:"denied,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Answer         string        `json:"answer"`
	AnswerMD       string        `json:"answer_md"`
	Sources        []Source      `json:"sources"`
	ThreadID       string        `json:"thread_id"`
	AgentID        string        `json:"agent_id"`
	PendingEmail   *EmailDraft   `json:"pending_email,omitempty"`
	PendingMeeting *MeetingDraft `json:"pending_meeting,omitempty"`
}
