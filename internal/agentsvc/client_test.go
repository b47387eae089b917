package agentsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateThreadSendsProjectHeader(t *testing.T) {
	var gotHeader, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-project-id")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Thread{ID: "thread-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "proj-1", time.Second)
	id, err := c.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if id != "thread-1" {
		t.Fatalf("expected thread-1, got %s", id)
	}
	if gotHeader != "proj-1" {
		t.Fatalf("expected x-project-id proj-1, got %q", gotHeader)
	}
	if gotPath != "/threads" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestCreateThreadRejectsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.CreateThread(context.Background()); err == nil {
		t.Fatal("expected error for thread without id")
	}
}

func TestListMessagesRequestsNewestFirst(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[{"id":"m2","role":"assistant"},{"id":"m1","role":"user"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	msgs, err := c.ListMessages(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if gotQuery != "order=desc" {
		t.Fatalf("expected order=desc query, got %q", gotQuery)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" {
		t.Fatalf("expected newest message first, got %+v", msgs)
	}
}

func TestErrorIncludesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GetRun(context.Background(), "thread-1", "run-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "[429]") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error missing status or body: %v", err)
	}
}

func TestAddMessagePayload(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if err := c.AddMessage(context.Background(), "thread-1", "user", "hello"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(gotBody), &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if payload["role"] != "user" || payload["content"] != "hello" {
		t.Fatalf("unexpected payload %s", gotBody)
	}
}

func TestRunTerminal(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{RunStatusQueued, false},
		{RunStatusInProgress, false},
		{RunStatusCompleted, true},
		{RunStatusFailed, true},
		{RunStatusCancelled, true},
		{RunStatusExpired, true},
	}
	for _, tc := range cases {
		r := &Run{Status: tc.status}
		if r.Terminal() != tc.terminal {
			t.Fatalf("Terminal(%s) = %v, want %v", tc.status, r.Terminal(), tc.terminal)
		}
	}
}

// Malformed annotations must keep their raw bytes so the answer layer
// can still mine URLs out of them.
func TestAnnotationKeepsRawBytes(t *testing.T) {
	raw := `{"type":"weird_citation","text":"see https://example.com/report"}`
	var a Annotation
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Type != "weird_citation" {
		t.Fatalf("unexpected type %q", a.Type)
	}
	if !strings.Contains(string(a.Raw), "https://example.com/report") {
		t.Fatalf("raw bytes lost: %s", a.Raw)
	}
}
