package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plaza/cmd/internal/auth"
	"plaza/cmd/internal/blob"
)

type CreateMapRequest struct {
	Name         string  `json:"name" validate:"required,min=1,max=64"`
	Width        int     `json:"width" validate:"gte=1,lte=1000"`
	Height       int     `json:"height" validate:"gte=1,lte=1000"`
	ThumbnailKey *string `json:"thumbnail_key" validate:"omitempty,max=512"`
}

type CreateSpaceRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=64"`
	MapID string `json:"map_id" validate:"required,max=64"`
}

// Service validates world requests before they reach the store.
type Service struct {
	store Store
	blobs blob.Store
	now   func() time.Time
}

func NewService(store Store, blobs blob.Store) (*Service, error) {
	if store == nil || blobs == nil {
		return nil, errors.New("world: nil dependency")
	}
	return &Service{store: store, blobs: blobs, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Store returns the underlying store; the realtime gateway reads space
// dimensions through it.
func (s *Service) Store() Store { return s.store }

func (s *Service) CreateMap(ctx context.Context, creator string, in CreateMapRequest) (Map, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.ThumbnailKey != nil {
		k := strings.TrimSpace(*in.ThumbnailKey)
		in.ThumbnailKey = &k
	}
	if err := auth.Validate(in); err != nil {
		return Map{}, err
	}
	if in.ThumbnailKey != nil {
		ok, err := s.blobs.Exists(ctx, *in.ThumbnailKey)
		if err != nil {
			return Map{}, fmt.Errorf("world.CreateMap: %w", err)
		}
		if !ok {
			return Map{}, &auth.ValidationError{Fields: []auth.FieldError{{Field: "thumbnail_key", Message: "object does not exist", Code: "missing"}}}
		}
	}
	return s.store.CreateMap(ctx, CreateMapInput{
		Name:         in.Name,
		Width:        in.Width,
		Height:       in.Height,
		ThumbnailKey: in.ThumbnailKey,
		CreatedBy:    creator,
		Now:          s.now(),
	})
}

func (s *Service) CreateSpace(ctx context.Context, creator string, in CreateSpaceRequest) (Space, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.MapID = strings.TrimSpace(in.MapID)
	if err := auth.Validate(in); err != nil {
		return Space{}, err
	}
	sp, err := s.store.CreateSpace(ctx, CreateSpaceInput{Name: in.Name, MapID: in.MapID, CreatedBy: creator, Now: s.now()})
	if errors.Is(err, ErrMapNotFound) {
		return Space{}, &auth.ValidationError{Fields: []auth.FieldError{{Field: "map_id", Message: "map does not exist", Code: "unknown_map"}}}
	}
	return sp, err
}

func (s *Service) GetSpace(ctx context.Context, id string) (Space, error) {
	return s.store.GetSpace(ctx, id)
}
