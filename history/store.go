// Package history persists session conversations so they survive restarts.
//
// Saves are fire-and-forget: snapshots queue in memory and a background
// writer flushes them on an interval. A crash can lose snapshots queued
// since the last flush; callers that need durability should Close the
// store, which drains the queue.
package history

import (
	"context"
	"time"

	"github.com/dtessler/coxswain/session"
)

// SessionInfo summarizes one persisted session.
type SessionInfo struct {
	ID        string
	UserID    string
	Messages  int
	UpdatedAt time.Time
}

// Store loads and saves session histories.
type Store interface {
	// Load returns the persisted memory for a session, or an empty memory
	// when the session has never been saved.
	Load(ctx context.Context, sessionID, userID string) (*session.Memory, error)

	// Save queues a snapshot of the session for persistence. It never
	// blocks on I/O and never returns an error to the caller.
	Save(sessionID string, mem *session.Memory, userID string)

	// ListSessions returns summaries of all persisted sessions, most
	// recently updated first.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// Close drains pending snapshots and releases resources.
	Close() error
}

// NopStore discards saves and loads empty memories. Used when persistence
// is disabled.
type NopStore struct{}

func (NopStore) Load(ctx context.Context, sessionID, userID string) (*session.Memory, error) {
	return session.NewMemory(), nil
}

func (NopStore) Save(sessionID string, mem *session.Memory, userID string) {}

func (NopStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }
