package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dinner_recipe_bot/internal/domain"
)

var _ domain.SettingsStore = (*MemoryStore)(nil)

// MemoryStore keeps user states in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]domain.UserState
	now    func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[int64]domain.UserState),
		now:    time.Now,
	}
}

// Get returns a copy of the state stored for userID.
func (m *MemoryStore) Get(_ context.Context, userID int64) (domain.UserState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[userID]
	return state, ok, nil
}

// Set replaces the state of state.UserID.
func (m *MemoryStore) Set(_ context.Context, state domain.UserState) error {
	if state.UserID == 0 {
		return fmt.Errorf("set user state: %w", errUserIDRequired)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[state.UserID] = m.stamp(state)
	return nil
}

// Update applies fn under the store lock and keeps the result unless fn
// fails.
func (m *MemoryStore) Update(_ context.Context, userID int64, fn func(*domain.UserState) error) (domain.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[userID]
	if !ok {
		return domain.UserState{}, domain.ErrStateNotFound
	}

	if err := fn(&state); err != nil {
		return domain.UserState{}, err
	}
	state.UserID = userID

	state = m.stamp(state)
	m.states[userID] = state
	return state, nil
}

// Len returns the number of stored users.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close(context.Context) error { return nil }

func (m *MemoryStore) stamp(state domain.UserState) domain.UserState {
	state.Normalize()
	state.UpdatedAt = m.now().UTC().Truncate(time.Millisecond)
	return state
}
