package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/telagent/gateway/internal/agentsvc"
	"github.com/telagent/gateway/internal/domain"
)

// selectAgent maps the caller's role to a configured agent id. Role
// agents fall back to the default id; no configured id at all is a
// deployment error.
func (s *Service) selectAgent(role domain.Role) (string, error) {
	var id string
	switch role {
	case domain.RoleAdmin:
		id = s.config.AgentIDAdmin
	case domain.RoleUser:
		id = s.config.AgentIDUser
	}
	if id == "" {
		id = s.config.AgentIDDefault
	}
	if id == "" {
		return "", &domain.ConfigurationError{Setting: "AGENT_ID / AGENT_ID_USER / AGENT_ID_ADMIN"}
	}
	return id, nil
}

// EnsureThread returns the given thread id unchanged, creating a fresh
// thread only when none exists yet. Thread ids are immutable once
// created.
func (s *Service) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	return s.agents.CreateThread(ctx)
}

// RunTurn appends the user message to the thread, starts a run and
// polls it to a terminal state within the configured wait budget. A run
// that exceeds the budget is reported as timed_out in the result, not
// as an error.
func (s *Service) RunTurn(ctx context.Context, threadID, agentID, input string) (*domain.RunResult, *agentsvc.ThreadMessage, error) {
	if err := s.agents.AddMessage(ctx, threadID, "user", input); err != nil {
		return nil, nil, err
	}

	run, err := s.agents.CreateRun(ctx, threadID, agentID)
	if err != nil {
		return nil, nil, err
	}

	deadline := time.Now().Add(s.config.RunMaxWait)
	for !run.Terminal() {
		if time.Now().After(deadline) {
			return &domain.RunResult{
				Status:      domain.RunStatusTimedOut,
				ErrorDetail: fmt.Sprintf("run %s still %s after %s", run.ID, run.Status, s.config.RunMaxWait),
			}, nil, nil
		}
		if err := s.sleep(ctx, s.config.RunPollInterval); err != nil {
			return nil, nil, err
		}
		run, err = s.agents.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	if run.Status != agentsvc.RunStatusCompleted {
		detail := run.Status
		if run.LastError != nil {
			detail = fmt.Sprintf("%s: %s (%s)", run.Status, run.LastError.Message, run.LastError.Code)
		}
		return &domain.RunResult{Status: domain.RunStatusFailed, ErrorDetail: detail}, nil, nil
	}

	msg, err := s.latestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	return &domain.RunResult{Status: domain.RunStatusCompleted}, msg, nil
}

// latestAssistantMessage picks the newest assistant message carrying a
// non-empty text value. The listing is newest-first, so the first match
// is the answer to the run that just finished; blocks with only empty
// values are skipped the same as blockless messages.
func (s *Service) latestAssistantMessage(ctx context.Context, threadID string) (*agentsvc.ThreadMessage, error) {
	messages, err := s.agents.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Role != "assistant" {
			continue
		}
		if !hasText(&messages[i]) {
			continue
		}
		return &messages[i], nil
	}
	return nil, nil
}

func hasText(msg *agentsvc.ThreadMessage) bool {
	for _, block := range msg.Content {
		if block.Text != nil && block.Text.Value != "" {
			return true
		}
	}
	return false
}

// recordMessage writes one turn message to the conversation log.
// Storage failure is logged, never fatal to the turn.
func (s *Service) recordMessage(ctx context.Context, threadID, role, content string) {
	msg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.log.AppendMessage(ctx, msg); err != nil {
		log.Printf("ERROR: failed to save %s message: %v", role, err)
	}
}
