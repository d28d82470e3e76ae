package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded Store for development and tests. The single
// lock plays the role of the row lock in PostgresStore.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[row.ID]; exists {
		return fmt.Errorf("session: create: duplicate id %s", row.ID)
	}
	created := row.CreatedAt
	row.LastUsedAt = &created
	s.rows[row.ID] = row
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, p RotateParams) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[p.SessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	if err := checkActive(row, p.UserID, p.Now); err != nil {
		return Row{}, err
	}
	if !p.Matches(row.TokenHash) {
		return Row{}, ErrStaleToken
	}

	now := p.Now
	row.TokenHash = p.NewHash
	row.ExpiresAt = p.NewExpiresAt
	row.LastUsedAt = &now
	s.rows[row.ID] = row
	return row, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id, userID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.UserID != userID || row.RevokedAt != nil {
		return false, nil
	}
	row.RevokedAt = &now
	s.rows[id] = row
	return true, nil
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, row := range s.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
			s.rows[id] = row
			n++
		}
	}
	return n, nil
}
