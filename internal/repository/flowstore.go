package repository

import (
	"context"

	"github.com/telagent/gateway/internal/domain"
)

// FlowStore adapts the SQLite store to the auth flow-store interface,
// serving as the durable fallback tier behind the in-memory store.
type FlowStore struct {
	store *SQLiteStore
}

// NewFlowStore wraps the store as a flow store.
func NewFlowStore(store *SQLiteStore) *FlowStore {
	return &FlowStore{store: store}
}

// Save persists the flow state keyed by its nonce.
func (f *FlowStore) Save(ctx context.Context, flow *domain.AuthFlowState) error {
	return f.store.SaveAuthFlow(ctx, flow)
}

// Take consumes the flow state for the nonce, nil when absent.
func (f *FlowStore) Take(ctx context.Context, state string) (*domain.AuthFlowState, error) {
	return f.store.TakeAuthFlow(ctx, state)
}
