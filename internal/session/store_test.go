package session

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

func TestStoreGetAbsentReturnsInitial(t *testing.T) {
	store := NewStore(15*time.Minute, zap.NewNop())

	state := store.Get("u1")
	if state.Step != domain.StepInitial || state.UserID != "u1" {
		t.Fatalf("absent entry must yield initial state, got %+v", state)
	}
}

func TestStoreRoundTripAndClear(t *testing.T) {
	store := NewStore(15*time.Minute, zap.NewNop())
	store.Put(domain.ConversationState{
		UserID:           "u1",
		Step:             domain.StepEnteringDescription,
		SelectedCategory: "general",
	})

	state := store.Get("u1")
	if state.Step != domain.StepEnteringDescription || state.SelectedCategory != "general" {
		t.Fatalf("unexpected state %+v", state)
	}

	store.Clear("u1")
	if got := store.Get("u1"); got.Step != domain.StepInitial {
		t.Fatalf("cleared entry must yield initial state, got %+v", got)
	}
}

func TestStoreExpiry(t *testing.T) {
	store := NewStore(15*time.Minute, zap.NewNop())
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Put(domain.ConversationState{UserID: "u1", Step: domain.StepSelectingCategory})

	store.now = func() time.Time { return base.Add(14 * time.Minute) }
	if got := store.Get("u1"); got.Step != domain.StepSelectingCategory {
		t.Fatalf("entry expired too early: %+v", got)
	}

	store.now = func() time.Time { return base.Add(16 * time.Minute) }
	if got := store.Get("u1"); got.Step != domain.StepInitial {
		t.Fatalf("entry must expire after the TTL, got %+v", got)
	}
}

func TestStorePutRefreshesDeadline(t *testing.T) {
	store := NewStore(15*time.Minute, zap.NewNop())
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Put(domain.ConversationState{UserID: "u1", Step: domain.StepSelectingCategory})

	store.now = func() time.Time { return base.Add(10 * time.Minute) }
	store.Put(domain.ConversationState{UserID: "u1", Step: domain.StepEnteringDescription})

	store.now = func() time.Time { return base.Add(20 * time.Minute) }
	if got := store.Get("u1"); got.Step != domain.StepEnteringDescription {
		t.Fatalf("rewrite must refresh the deadline, got %+v", got)
	}
}

func TestStoreSweepRemovesExpired(t *testing.T) {
	store := NewStore(15*time.Minute, zap.NewNop())
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Put(domain.ConversationState{UserID: "u1", Step: domain.StepSelectingCategory})
	store.Put(domain.ConversationState{UserID: "u2", Step: domain.StepSelectingCategory})

	store.now = func() time.Time { return base.Add(16 * time.Minute) }
	store.sweep()

	if store.Len() != 0 {
		t.Fatalf("sweep must remove expired entries, %d left", store.Len())
	}
}
