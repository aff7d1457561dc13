// Package session tracks per-user DM conversation state. State is
// process-local: a restart simply drops everyone back to the initial
// step, which the conversation flow recovers from.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Store is an in-memory conversation-state map with idle expiry. Every
// write refreshes the entry's deadline; reads past the deadline behave
// as if the entry never existed.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

type storeEntry struct {
	state    domain.ConversationState
	deadline time.Time
}

// NewStore creates a store with the given idle TTL.
func NewStore(ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[string]*storeEntry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the user's current state. An absent or expired entry
// yields a fresh state at the initial step.
func (s *Store) Get(userID string) domain.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[userID]
	if !ok || s.now().After(entry.deadline) {
		if ok {
			delete(s.entries, userID)
		}
		return domain.ConversationState{UserID: userID, Step: domain.StepInitial}
	}
	return entry.state
}

// Put stores the state and refreshes its idle deadline.
func (s *Store) Put(state domain.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state.UserID] = &storeEntry{
		state:    state,
		deadline: s.now().Add(s.ttl),
	}
}

// Clear removes the user's state.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Len reports the number of live entries, expired ones included until
// the next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor sweeps expired entries until the context is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, entry := range s.entries {
		if now.After(entry.deadline) {
			delete(s.entries, userID)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired conversation sessions", zap.Int("removed", removed))
	}
}
