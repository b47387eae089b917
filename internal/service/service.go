package service

import (
	"context"
	"time"

	"github.com/telagent/gateway/internal/agentsvc"
	"github.com/telagent/gateway/internal/config"
	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/internal/graph"
	"github.com/telagent/gateway/internal/intent"
	"github.com/telagent/gateway/internal/obo"
)

// ConversationLog persists the per-thread message history.
type ConversationLog interface {
	AppendMessage(ctx context.Context, msg *domain.Message) error
	GetMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
}

// SecuredBackend answers policy-scoped data queries.
type SecuredBackend interface {
	Query(ctx context.Context, role domain.Role, q domain.SecuredQuery) (*domain.SecuredResult, error)
}

type Service struct {
	log       ConversationLog
	agents    *agentsvc.Client
	graph     *graph.Client
	exchanger *obo.Exchanger
	router    *intent.Router
	config    *config.Config

	// sleep is swapped out in tests to avoid real polling delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(log ConversationLog, agents *agentsvc.Client, graphClient *graph.Client, exchanger *obo.Exchanger, securedSvc SecuredBackend, cfg *config.Config) *Service {
	return &Service{
		log:       log,
		agents:    agents,
		graph:     graphClient,
		exchanger: exchanger,
		router:    intent.NewRouter(securedSvc),
		config:    cfg,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
