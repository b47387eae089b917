package auth

import (
	"context"
	"sync"
	"time"

	"github.com/telagent/gateway/internal/domain"
)

// FlowStore keys in-flight authorization flows by their state nonce.
// Take is destructive: a stored flow can be taken at most once.
type FlowStore interface {
	Save(ctx context.Context, flow *domain.AuthFlowState) error
	Take(ctx context.Context, state string) (*domain.AuthFlowState, error)
}

// MemoryFlowStore is the in-process flow store. Entries older than the
// TTL are evicted lazily on write, so abandoned flows do not accumulate.
type MemoryFlowStore struct {
	mu    sync.Mutex
	flows map[string]*domain.AuthFlowState
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryFlowStore creates a memory store with the given TTL. A zero
// TTL disables eviction.
func NewMemoryFlowStore(ttl time.Duration) *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: make(map[string]*domain.AuthFlowState),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Save stores the flow under its state nonce.
func (m *MemoryFlowStore) Save(_ context.Context, flow *domain.AuthFlowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	m.flows[flow.State] = flow
	return nil
}

// Take returns and removes the flow for the state, or nil when absent.
func (m *MemoryFlowStore) Take(_ context.Context, state string) (*domain.AuthFlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[state]
	if !ok {
		return nil, nil
	}
	delete(m.flows, state)
	if m.ttl > 0 && m.now().Sub(flow.CreatedAt) > m.ttl {
		return nil, nil
	}
	return flow, nil
}

func (m *MemoryFlowStore) evictLocked() {
	if m.ttl <= 0 {
		return
	}
	cutoff := m.now().Add(-m.ttl)
	for state, flow := range m.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(m.flows, state)
		}
	}
}

// TieredFlowStore writes through to a fast primary and a durable
// fallback, and reads through the primary first. The fallback covers the
// redirect round-trip landing in a different process than the one that
// issued the authorization URI.
type TieredFlowStore struct {
	primary  FlowStore
	fallback FlowStore
}

// NewTieredFlowStore composes the two tiers behind the single FlowStore
// interface.
func NewTieredFlowStore(primary, fallback FlowStore) *TieredFlowStore {
	return &TieredFlowStore{primary: primary, fallback: fallback}
}

// Save writes the flow to both tiers. The fallback write is the one that
// must succeed; a primary failure only loses the fast path.
func (t *TieredFlowStore) Save(ctx context.Context, flow *domain.AuthFlowState) error {
	if err := t.fallback.Save(ctx, flow); err != nil {
		return err
	}
	return t.primary.Save(ctx, flow)
}

// Take consumes the flow from whichever tier holds it, removing it from
// both so the nonce stays single-use.
func (t *TieredFlowStore) Take(ctx context.Context, state string) (*domain.AuthFlowState, error) {
	flow, err := t.primary.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	fallbackFlow, err := t.fallback.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	if flow != nil {
		return flow, nil
	}
	return fallbackFlow, nil
}
