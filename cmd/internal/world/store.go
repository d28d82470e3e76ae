// Package world holds the static shape of the virtual world: maps (a grid
// with fixed dimensions) and spaces (named instances of a map that users
// walk around in).
package world

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMapNotFound   = errors.New("map not found")
	ErrSpaceNotFound = errors.New("space not found")
	ErrInvalidInput  = errors.New("invalid world input")
)

const (
	MaxDimension = 1000
	MaxNameLen   = 64
)

type Map struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	ThumbnailKey *string   `json:"thumbnail_key,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type Space struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MapID     string    `json:"map_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateMapInput struct {
	Name         string
	Width        int
	Height       int
	ThumbnailKey *string
	CreatedBy    string
	Now          time.Time
}

type CreateSpaceInput struct {
	Name      string
	MapID     string
	CreatedBy string
	Now       time.Time
}

// Store persists maps and spaces. Spaces are returned joined with their
// map's dimensions.
type Store interface {
	CreateMap(ctx context.Context, in CreateMapInput) (Map, error)
	CreateSpace(ctx context.Context, in CreateSpaceInput) (Space, error)
	GetSpace(ctx context.Context, id string) (Space, error)
	Dimensions(ctx context.Context, spaceID string) (width, height int, err error)
}

func checkMap(in CreateMapInput) error {
	switch {
	case in.Name == "" || len(in.Name) > MaxNameLen:
		return errors.Join(ErrInvalidInput, errors.New("name must be 1..64 characters"))
	case in.Width < 1 || in.Width > MaxDimension:
		return errors.Join(ErrInvalidInput, errors.New("width must be 1..1000"))
	case in.Height < 1 || in.Height > MaxDimension:
		return errors.Join(ErrInvalidInput, errors.New("height must be 1..1000"))
	case in.CreatedBy == "":
		return errors.Join(ErrInvalidInput, errors.New("creator is required"))
	}
	return nil
}

func checkSpace(in CreateSpaceInput) error {
	switch {
	case in.Name == "" || len(in.Name) > MaxNameLen:
		return errors.Join(ErrInvalidInput, errors.New("name must be 1..64 characters"))
	case in.MapID == "":
		return ErrMapNotFound
	case in.CreatedBy == "":
		return errors.Join(ErrInvalidInput, errors.New("creator is required"))
	}
	return nil
}
