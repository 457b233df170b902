package domain

import "errors"

var (
	// ErrUpstream marks failures of the generation service or the Telegram API.
	ErrUpstream = errors.New("upstream call failed")
	// ErrInvalidInput marks malformed or out-of-range user arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStateNotFound is returned by SettingsStore.Update for unknown users.
	ErrStateNotFound = errors.New("user state not found")
)
