// Package agentsvc is the HTTP client for the managed agent service. The
// service is a black box reachable through a create-thread / add-message /
// run / list-messages contract.
package agentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the agent service. Every call carries a finite timeout
// through the underlying http.Client.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
}

// NewClient creates a new agent service client.
func NewClient(baseURL, projectID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		projectID:  projectID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Run statuses reported by the agent service.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusCancelled  = "cancelled"
	RunStatusExpired    = "expired"
)

// Thread is a created conversation thread.
type Thread struct {
	ID string `json:"id"`
}

// Run is an agent run on a thread.
type Run struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunError is the error detail of a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the run has reached a terminal state.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// ThreadMessage is one message in the service's listing.
type ThreadMessage struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one ordered content block of a message.
type ContentBlock struct {
	Type string     `json:"type"`
	Text *TextBlock `json:"text,omitempty"`
}

// TextBlock carries the text value and its citation annotations.
type TextBlock struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation is a citation reference attached to a text block. Exactly
// one of the typed fields is set for well-formed annotations; Raw keeps
// the original bytes for the bare-URL rescue scan on malformed ones.
type Annotation struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	FileCitation *FileCitation `json:"file_citation,omitempty"`
	FilePath     *FilePath     `json:"file_path,omitempty"`
	URLCitation  *URLCitation  `json:"url_citation,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw annotation bytes alongside the decoded
// fields.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	type plain Annotation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Annotation(p)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// FileCitation references a quoted span inside an indexed document.
type FileCitation struct {
	FileID string `json:"file_id"`
	Quote  string `json:"quote,omitempty"`
}

// FilePath references a generated file attachment.
type FilePath struct {
	FileID string `json:"file_id"`
}

// URLCitation references an external web source.
type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type messageList struct {
	Data []ThreadMessage `json:"data"`
}

// CreateThread creates a new empty thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]interface{}{}, &thread); err != nil {
		return "", err
	}
	if thread.ID == "" {
		return "", fmt.Errorf("agent service returned thread without id")
	}
	return thread.ID, nil
}

// AddMessage appends a message to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID, role, text string) error {
	payload := map[string]string{"role": role, "content": text}
	return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", payload, nil)
}

// CreateRun starts an agent run on the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	payload := map[string]string{"agent_id": agentID}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListMessages returns the thread's messages. The listing order is
// pinned to newest-first; answer selection depends on it.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var list messageList
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.projectID != "" {
		req.Header.Set("x-project-id", c.projectID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("agent service error [%d]: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
