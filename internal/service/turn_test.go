package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/telagent/gateway/internal/agentsvc"
	"github.com/telagent/gateway/internal/config"
	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/internal/graph"
	"github.com/telagent/gateway/internal/obo"
)

type memoryLog struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (m *memoryLog) AppendMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memoryLog) GetMessages(_ context.Context, threadID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

// fakeAgent is a scripted agent service: run statuses are served in
// order, then the last one repeats.
type fakeAgent struct {
	mu          sync.Mutex
	statuses    []string
	lastError   *agentsvc.RunError
	messages    []agentsvc.ThreadMessage
	runAgentID  string
	addedTexts  []string
	getRunCalls int
}

func (f *fakeAgent) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "thread-1"})
	})
	mux.HandleFunc("POST /threads/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.addedTexts = append(f.addedTexts, payload["content"])
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	})
	mux.HandleFunc("POST /threads/thread-1/runs", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.runAgentID = payload["agent_id"]
		status := f.statuses[0]
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "run-1", "status": status})
	})
	mux.HandleFunc("GET /threads/thread-1/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.getRunCalls++
		idx := f.getRunCalls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		run := agentsvc.Run{ID: "run-1", Status: f.statuses[idx], LastError: f.lastError}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(run)
	})
	mux.HandleFunc("GET /threads/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		data := f.messages
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	})
	return httptest.NewServer(mux)
}

func assistantMessage(id, text string) agentsvc.ThreadMessage {
	return agentsvc.ThreadMessage{
		ID:   id,
		Role: "assistant",
		Content: []agentsvc.ContentBlock{
			{Type: "text", Text: &agentsvc.TextBlock{Value: text}},
		},
	}
}

func testServiceConfig() *config.Config {
	return &config.Config{
		AgentIDDefault:  "agent-default",
		AgentIDUser:     "agent-user",
		AgentIDAdmin:    "agent-admin",
		RunMaxWait:      2 * time.Second,
		RunPollInterval: time.Millisecond,
		GraphScope:      "https://graph.microsoft.com/.default",
	}
}

func newTestService(t *testing.T, agentURL string, securedSvc SecuredBackend) (*Service, *memoryLog) {
	t.Helper()
	logStore := &memoryLog{}
	agents := agentsvc.NewClient(agentURL, "", time.Second)
	graphClient := graph.NewClient("http://graph.invalid", time.Second)
	exchanger := obo.NewExchanger("", "", "", time.Second)
	svc := New(logStore, agents, graphClient, exchanger, securedSvc, testServiceConfig())
	return svc, logStore
}

func TestSelectAgent(t *testing.T) {
	svc, _ := newTestService(t, "http://agent.invalid", nil)

	cases := []struct {
		role domain.Role
		want string
	}{
		{domain.RoleAdmin, "agent-admin"},
		{domain.RoleUser, "agent-user"},
		{domain.RoleUnauthorized, "agent-default"},
	}
	for _, tc := range cases {
		got, err := svc.selectAgent(tc.role)
		if err != nil {
			t.Fatalf("selectAgent(%s): %v", tc.role, err)
		}
		if got != tc.want {
			t.Fatalf("selectAgent(%s) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func TestSelectAgentRoleFallback(t *testing.T) {
	svc, _ := newTestService(t, "http://agent.invalid", nil)
	svc.config.AgentIDAdmin = ""

	got, err := svc.selectAgent(domain.RoleAdmin)
	if err != nil {
		t.Fatalf("selectAgent: %v", err)
	}
	if got != "agent-default" {
		t.Fatalf("missing role agent must fall back, got %q", got)
	}
}

func TestSelectAgentNoneConfigured(t *testing.T) {
	svc, _ := newTestService(t, "http://agent.invalid", nil)
	svc.config.AgentIDDefault = ""
	svc.config.AgentIDUser = ""
	svc.config.AgentIDAdmin = ""

	if _, err := svc.selectAgent(domain.RoleUser); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestRunTurnPollsToCompletion(t *testing.T) {
	agent := &fakeAgent{
		statuses: []string{"queued", "in_progress", "completed"},
		messages: []agentsvc.ThreadMessage{
			assistantMessage("m-new", "Latest answer"),
			assistantMessage("m-old", "Older answer"),
		},
	}
	srv := agent.server()
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL, nil)
	result, msg, err := svc.RunTurn(context.Background(), "thread-1", "agent-user", "hello")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if msg == nil || msg.ID != "m-new" {
		t.Fatalf("newest assistant message must win, got %+v", msg)
	}
	if agent.runAgentID != "agent-user" {
		t.Fatalf("agent id = %q", agent.runAgentID)
	}
	if agent.addedTexts[0] != "hello" {
		t.Fatalf("user message not appended: %+v", agent.addedTexts)
	}
	if agent.getRunCalls < 2 {
		t.Fatalf("expected polling, got %d calls", agent.getRunCalls)
	}
}

func TestRunTurnSkipsNonAnswerMessages(t *testing.T) {
	agent := &fakeAgent{
		statuses: []string{"completed"},
		messages: []agentsvc.ThreadMessage{
			{ID: "m-user", Role: "user", Content: []agentsvc.ContentBlock{{Type: "text", Text: &agentsvc.TextBlock{Value: "hello"}}}},
			{ID: "m-empty", Role: "assistant"},
			assistantMessage("m-blank", ""),
			assistantMessage("m-answer", "The answer"),
		},
	}
	srv := agent.server()
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL, nil)
	_, msg, err := svc.RunTurn(context.Background(), "thread-1", "agent-user", "hello")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if msg == nil || msg.ID != "m-answer" {
		t.Fatalf("expected m-answer, got %+v", msg)
	}
}

func TestRunTurnTimeout(t *testing.T) {
	agent := &fakeAgent{statuses: []string{"queued", "in_progress"}}
	srv := agent.server()
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL, nil)
	svc.config.RunMaxWait = 10 * time.Millisecond
	svc.config.RunPollInterval = 2 * time.Millisecond

	result, msg, err := svc.RunTurn(context.Background(), "thread-1", "agent-user", "hello")
	if err != nil {
		t.Fatalf("timeout must be data, not an error: %v", err)
	}
	if result.Status != domain.RunStatusTimedOut {
		t.Fatalf("status = %s", result.Status)
	}
	if msg != nil {
		t.Fatalf("no message expected on timeout, got %+v", msg)
	}
}

func TestRunTurnFailedRun(t *testing.T) {
	agent := &fakeAgent{
		statuses:  []string{"queued", "failed"},
		lastError: &agentsvc.RunError{Code: "rate_limit_exceeded", Message: "try later"},
	}
	srv := agent.server()
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL, nil)
	result, _, err := svc.RunTurn(context.Background(), "thread-1", "agent-user", "hello")
	if err != nil {
		t.Fatalf("failed run must be data, not an error: %v", err)
	}
	if result.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if result.ErrorDetail == "" {
		t.Fatal("error detail must carry the run error")
	}
}

func TestEnsureThread(t *testing.T) {
	agent := &fakeAgent{statuses: []string{"completed"}}
	srv := agent.server()
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL, nil)

	id, err := svc.EnsureThread(context.Background(), "existing")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if id != "existing" {
		t.Fatalf("existing thread id must be immutable, got %q", id)
	}

	id, err = svc.EnsureThread(context.Background(), "")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if id != "thread-1" {
		t.Fatalf("new thread id = %q", id)
	}
}
