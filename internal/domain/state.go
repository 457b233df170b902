package domain

import (
	"context"
	"time"
)

// DefaultRepeats is the repeat budget assumed for users that never ran /settime.
const DefaultRepeats = 1

// UserState is the per-user record kept by the settings store.
type UserState struct {
	UserID            int64     `bson:"user_id" json:"user_id"`
	LastText          string    `bson:"last_text" json:"last_text"`
	RepeatsConfigured int       `bson:"repeats_configured" json:"repeats_configured"`
	RepeatsRemaining  int       `bson:"repeats_remaining" json:"repeats_remaining"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}

// NewUserState returns a state with a full repeat budget of n.
func NewUserState(userID int64, n int) UserState {
	return UserState{
		UserID:            userID,
		RepeatsConfigured: n,
		RepeatsRemaining:  n,
	}
}

// Consume decrements the remaining budget, never below zero.
func (s *UserState) Consume() {
	if s.RepeatsRemaining > 0 {
		s.RepeatsRemaining--
	}
}

// Exhausted reports whether scheduled sends should be skipped.
func (s UserState) Exhausted() bool {
	return s.RepeatsRemaining <= 0
}

// Normalize clamps the counters so that 0 <= RepeatsRemaining <= RepeatsConfigured.
func (s *UserState) Normalize() {
	if s.RepeatsConfigured < 0 {
		s.RepeatsConfigured = 0
	}
	if s.RepeatsRemaining < 0 {
		s.RepeatsRemaining = 0
	}
	if s.RepeatsRemaining > s.RepeatsConfigured {
		s.RepeatsRemaining = s.RepeatsConfigured
	}
}

// SettingsStore persists UserState records keyed by Telegram user ID.
type SettingsStore interface {
	// Get returns the stored state and whether it exists.
	Get(ctx context.Context, userID int64) (UserState, bool, error)
	// Set overwrites the state for state.UserID.
	Set(ctx context.Context, state UserState) error
	// Update applies fn to the stored state and saves the result. It returns
	// ErrStateNotFound when the user has no state.
	Update(ctx context.Context, userID int64, fn func(*UserState) error) (UserState, error)
	// Ping reports backend health.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close(ctx context.Context) error
}
