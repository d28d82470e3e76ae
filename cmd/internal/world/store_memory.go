package world

import (
	"context"
	"strings"
	"sync"
	"time"

	"plaza/cmd/identity/ids"
)

type MemoryStore struct {
	mu     sync.RWMutex
	maps   map[string]Map
	spaces map[string]Space
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{maps: make(map[string]Map), spaces: make(map[string]Space)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateMap(ctx context.Context, in CreateMapInput) (Map, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkMap(in); err != nil {
		return Map{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Map{}, err
	}
	m := Map{ID: id, Name: in.Name, Width: in.Width, Height: in.Height, ThumbnailKey: in.ThumbnailKey, CreatedBy: in.CreatedBy, CreatedAt: now}

	s.mu.Lock()
	s.maps[id] = m
	s.mu.Unlock()
	return m, nil
}

func (s *MemoryStore) CreateSpace(ctx context.Context, in CreateSpaceInput) (Space, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.MapID = strings.TrimSpace(in.MapID)
	if err := checkSpace(in); err != nil {
		return Space{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Space{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[in.MapID]
	if !ok {
		return Space{}, ErrMapNotFound
	}
	sp := Space{ID: id, Name: in.Name, MapID: m.ID, Width: m.Width, Height: m.Height, CreatedBy: in.CreatedBy, CreatedAt: now}
	s.spaces[id] = sp
	return sp, nil
}

func (s *MemoryStore) GetSpace(ctx context.Context, id string) (Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spaces[strings.TrimSpace(id)]
	if !ok {
		return Space{}, ErrSpaceNotFound
	}
	return sp, nil
}

func (s *MemoryStore) Dimensions(ctx context.Context, spaceID string) (int, int, error) {
	sp, err := s.GetSpace(ctx, spaceID)
	if err != nil {
		return 0, 0, err
	}
	return sp.Width, sp.Height, nil
}
