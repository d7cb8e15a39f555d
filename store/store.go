// Package store defines where the last successful wallet connection is kept
// between runs, so the manager can reconnect silently on startup.
package store

import (
	"context"

	"github.com/vitwit/walletlink/types"
)

// SessionStore persists at most one StoredSession.
type SessionStore interface {
	// Load returns the stored session, or nil when there is none.
	Load(ctx context.Context) (*types.StoredSession, error)
	Save(ctx context.Context, session types.StoredSession) error
	Clear(ctx context.Context) error
}
