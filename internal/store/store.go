package store

import (
	"context"
	"errors"
)

// RecentlyUsedSessionsKey is the settings key holding the recently used session order.
const RecentlyUsedSessionsKey = "recently-used-sessions"

// ErrNotFound is returned when a setting has never been written.
var ErrNotFound = errors.New("setting not found")

// SettingsStore persists small application settings as opaque string values.
type SettingsStore interface {
	// Get returns the raw value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// RecentlyUsedSessions returns the persisted order of database directory names,
	// least recently used first. A missing setting yields an empty list.
	RecentlyUsedSessions(ctx context.Context) ([]string, error)

	// SaveRecentlyUsedSessions replaces the persisted order.
	SaveRecentlyUsedSessions(ctx context.Context, names []string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	SettingsStore

	// Close closes the underlying database connection.
	Close() error
}
