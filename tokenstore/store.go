package tokenstore

import (
	"context"
	"errors"
)

// ErrUnavailable wraps backend I/O failures (Redis down, unreadable file).
var ErrUnavailable = errors.New("token store unavailable")

// Store persists one opaque bearer token.
type Store interface {
	// Load returns the held token, or "" when none is held.
	Load(ctx context.Context) (string, error)
	// Save replaces the held token.
	Save(ctx context.Context, token string) error
	// Clear removes the held token. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
}
