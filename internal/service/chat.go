package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/telagent/gateway/internal/answer"
	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/internal/intent"
)

// Chat handles one conversation turn. Secured-data questions are
// answered directly from the policy-gated backend; everything else goes
// through the agent, and the rendered answer is scanned for action
// drafts afterwards.
func (s *Service) Chat(ctx context.Context, role domain.Role, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, &domain.ValidationError{Reason: "input is required"}
	}

	handled, secResult, err := s.router.RouteSecured(ctx, role, req.Input)
	if err != nil {
		return nil, err
	}
	if handled {
		return &domain.ChatResponse{
			Answer:   secResult.Answer,
			AnswerMD: secResult.AnswerMD,
			Sources:  []domain.Source{},
			ThreadID: req.ThreadID,
		}, nil
	}

	agentID, err := s.selectAgent(role)
	if err != nil {
		return nil, err
	}

	threadID, err := s.EnsureThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	s.recordMessage(ctx, threadID, "user", req.Input)

	result, msg, err := s.RunTurn(ctx, threadID, agentID, req.Input)
	if err != nil {
		return nil, err
	}
	if result.Status != domain.RunStatusCompleted {
		text := fmt.Sprintf("The agent did not complete this turn (%s).", result.Status)
		if result.ErrorDetail != "" {
			text = fmt.Sprintf("The agent did not complete this turn: %s", result.ErrorDetail)
		}
		return &domain.ChatResponse{
			Answer:   text,
			AnswerMD: text,
			Sources:  []domain.Source{},
			ThreadID: threadID,
			AgentID:  agentID,
		}, nil
	}

	ans := answer.Process(msg, req.Input)
	s.recordMessage(ctx, threadID, "assistant", ans.Answer)

	decision := intent.RouteDrafts(req.Input, ans.AnswerMD)
	return &domain.ChatResponse{
		Answer:         ans.Answer,
		AnswerMD:       ans.AnswerMD,
		Sources:        ans.Sources,
		ThreadID:       threadID,
		AgentID:        agentID,
		PendingEmail:   decision.Email,
		PendingMeeting: decision.Meeting,
	}, nil
}
