package session

import (
	"context"
	"time"
)

// Row mirrors one sessions row.
type Row struct {
	ID         string
	UserID     string
	TokenHash  string
	UserAgent  *string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// RotateParams describes one refresh rotation. Matches reports whether the
// stored hash belongs to the token the client sent; NewHash replaces it.
type RotateParams struct {
	SessionID    string
	UserID       string
	Matches      func(storedHash string) bool
	NewHash      string
	NewExpiresAt time.Time
	Now          time.Time
}

// Store persists sessions.
//
// Rotate must be atomic: the row is locked, the hash and expiry are replaced
// under a "still not revoked" condition, and only then is the pre-update
// hash checked with Matches. A mismatch discards the update and
// returns ErrStaleToken. Concurrent rotations with the same presented hash
// therefore produce exactly one success.
type Store interface {
	Create(ctx context.Context, row Row) error
	Get(ctx context.Context, id string) (Row, error)
	Rotate(ctx context.Context, p RotateParams) (Row, error)
	// Revoke sets revoked_at when the session is owned by userID and still
	// active. It reports whether a row changed.
	Revoke(ctx context.Context, id, userID string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}
