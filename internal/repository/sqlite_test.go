package repository

import (
	"context"
	"testing"
	"time"

	"github.com/telagent/gateway/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAuthFlowTakeDeletes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	flow := &domain.AuthFlowState{State: "s1", Verifier: "v1", AuthURI: "https://idp.test/authorize", CreatedAt: time.Now()}
	if err := store.SaveAuthFlow(ctx, flow); err != nil {
		t.Fatalf("SaveAuthFlow: %v", err)
	}

	got, err := store.TakeAuthFlow(ctx, "s1")
	if err != nil {
		t.Fatalf("TakeAuthFlow: %v", err)
	}
	if got == nil || got.Verifier != "v1" {
		t.Fatalf("unexpected flow: %+v", got)
	}

	again, err := store.TakeAuthFlow(ctx, "s1")
	if err != nil {
		t.Fatalf("second TakeAuthFlow: %v", err)
	}
	if again != nil {
		t.Fatalf("flow must be deleted on take, got %+v", again)
	}
}

func TestPurgeAuthFlowsBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := time.Now().Add(-time.Hour)
	if err := store.SaveAuthFlow(ctx, &domain.AuthFlowState{State: "old", Verifier: "v", AuthURI: "u", CreatedAt: old}); err != nil {
		t.Fatalf("SaveAuthFlow: %v", err)
	}
	if err := store.SaveAuthFlow(ctx, &domain.AuthFlowState{State: "fresh", Verifier: "v", AuthURI: "u", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveAuthFlow: %v", err)
	}

	if err := store.PurgeAuthFlowsBefore(ctx, time.Now().Add(-10*time.Minute)); err != nil {
		t.Fatalf("PurgeAuthFlowsBefore: %v", err)
	}

	gone, err := store.TakeAuthFlow(ctx, "old")
	if err != nil {
		t.Fatalf("TakeAuthFlow: %v", err)
	}
	if gone != nil {
		t.Fatal("stale flow must be purged")
	}
	kept, err := store.TakeAuthFlow(ctx, "fresh")
	if err != nil {
		t.Fatalf("TakeAuthFlow: %v", err)
	}
	if kept == nil {
		t.Fatal("fresh flow must survive the purge")
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := &domain.Session{
		SessionID:     "sess-1",
		Authenticated: true,
		Role:          domain.RoleUser,
		Token:         domain.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour).UTC()},
		Claims:        []byte(`{"name":"Ada"}`),
		CreatedAt:     time.Now(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || !got.Authenticated || got.Role != domain.RoleUser {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Token.AccessToken != "at" || got.Token.RefreshToken != "rt" {
		t.Fatalf("token set not round-tripped: %+v", got.Token)
	}

	if err := store.UpdateSessionToken(ctx, "sess-1", domain.TokenSet{AccessToken: "at2"}); err != nil {
		t.Fatalf("UpdateSessionToken: %v", err)
	}
	if err := store.UpdateSessionThread(ctx, "sess-1", "thread-1"); err != nil {
		t.Fatalf("UpdateSessionThread: %v", err)
	}

	got, err = store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Token.AccessToken != "at2" || got.ThreadID != "thread-1" {
		t.Fatalf("updates not applied: %+v", got)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	got, err = store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Fatalf("session must be gone, got %+v", got)
	}
}

func TestMessagesAppendOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		msg := &domain.Message{
			MessageID: content,
			ThreadID:  "t1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "first" || messages[2].Content != "third" {
		t.Fatalf("wrong order: %+v", messages)
	}

	limited, err := store.GetMessages(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit not applied, got %d", len(limited))
	}
}

func TestTopProduct(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	product, units, found, err := store.TopProduct(ctx, "region2")
	if err != nil {
		t.Fatalf("TopProduct: %v", err)
	}
	if !found || product != "IoT Fleet Tracker" || units != 2100 {
		t.Fatalf("region2 top = %q (%d, found=%v)", product, units, found)
	}

	// Unscoped: IoT Fleet Tracker leads with 2100+400 units.
	product, units, found, err = store.TopProduct(ctx, "")
	if err != nil {
		t.Fatalf("TopProduct: %v", err)
	}
	if !found || product != "IoT Fleet Tracker" || units != 2500 {
		t.Fatalf("global top = %q (%d, found=%v)", product, units, found)
	}

	_, _, found, err = store.TopProduct(ctx, "region9")
	if err != nil {
		t.Fatalf("TopProduct: %v", err)
	}
	if found {
		t.Fatal("unknown region must report no data")
	}
}

func TestProductRevenue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	revenue, found, err := store.ProductRevenue(ctx, "IoT Fleet Tracker", "region2")
	if err != nil {
		t.Fatalf("ProductRevenue: %v", err)
	}
	if !found || revenue != 693000 {
		t.Fatalf("region2 revenue = %v (found=%v)", revenue, found)
	}

	// Case-insensitive product match.
	revenue, found, err = store.ProductRevenue(ctx, "iot fleet tracker", "")
	if err != nil {
		t.Fatalf("ProductRevenue: %v", err)
	}
	if !found || revenue != 825000 {
		t.Fatalf("case-insensitive revenue = %v (found=%v)", revenue, found)
	}

	// Empty product means all products in scope.
	revenue, found, err = store.ProductRevenue(ctx, "", "region1")
	if err != nil {
		t.Fatalf("ProductRevenue: %v", err)
	}
	if !found || revenue != 795000 {
		t.Fatalf("region1 total = %v (found=%v)", revenue, found)
	}

	_, found, err = store.ProductRevenue(ctx, "Unknown Product", "")
	if err != nil {
		t.Fatalf("ProductRevenue: %v", err)
	}
	if found {
		t.Fatal("unknown product must report no data")
	}
}
