package world

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plaza/cmd/identity/ids"
)

// PostgresStore implements Store over the maps and spaces tables.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("world: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("world: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) maps() string   { return pgx.Identifier{s.schema, "maps"}.Sanitize() }
func (s *PostgresStore) spaces() string { return pgx.Identifier{s.schema, "spaces"}.Sanitize() }

func (s *PostgresStore) CreateMap(ctx context.Context, in CreateMapInput) (Map, error) {
	const op = "world.CreateMap"

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

	var m Map
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.maps()+` (id, name, width, height, thumbnail_key, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, name, width, height, thumbnail_key, created_by, created_at`,
		id, in.Name, in.Width, in.Height, in.ThumbnailKey, in.CreatedBy, now,
	).Scan(&m.ID, &m.Name, &m.Width, &m.Height, &m.ThumbnailKey, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return Map{}, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func (s *PostgresStore) CreateSpace(ctx context.Context, in CreateSpaceInput) (Space, error) {
	const op = "world.CreateSpace"

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

	// The insert selects from maps so that a soft-deleted map behaves like a
	// missing one; the FK still guards against races with hard deletes.
	var sp Space
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.spaces()+` AS sp (id, name, map_id, created_by, created_at)
		 SELECT $1, $2, m.id, $4, $5 FROM `+s.maps()+` m
		  WHERE m.id = $3 AND m.deleted_at IS NULL
		 RETURNING sp.id, sp.name, sp.map_id, sp.created_by, sp.created_at`,
		id, in.Name, in.MapID, in.CreatedBy, now,
	).Scan(&sp.ID, &sp.Name, &sp.MapID, &sp.CreatedBy, &sp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isForeignKeyViolation(err, "map_id") {
			return Space{}, ErrMapNotFound
		}
		return Space{}, fmt.Errorf("%s: %w", op, err)
	}

	if sp.Width, sp.Height, err = s.mapDimensions(ctx, sp.MapID); err != nil {
		return Space{}, fmt.Errorf("%s: %w", op, err)
	}
	return sp, nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, id string) (Space, error) {
	const op = "world.GetSpace"

	id = strings.TrimSpace(id)
	if id == "" {
		return Space{}, ErrSpaceNotFound
	}
	var sp Space
	err := s.pool.QueryRow(ctx,
		`SELECT sp.id, sp.name, sp.map_id, m.width, m.height, sp.created_by, sp.created_at
		   FROM `+s.spaces()+` sp
		   JOIN `+s.maps()+` m ON m.id = sp.map_id
		  WHERE sp.id = $1 AND sp.deleted_at IS NULL AND m.deleted_at IS NULL`,
		id,
	).Scan(&sp.ID, &sp.Name, &sp.MapID, &sp.Width, &sp.Height, &sp.CreatedBy, &sp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Space{}, ErrSpaceNotFound
		}
		return Space{}, fmt.Errorf("%s: %w", op, err)
	}
	return sp, nil
}

func (s *PostgresStore) Dimensions(ctx context.Context, spaceID string) (int, int, error) {
	sp, err := s.GetSpace(ctx, spaceID)
	if err != nil {
		return 0, 0, err
	}
	return sp.Width, sp.Height, nil
}

func (s *PostgresStore) mapDimensions(ctx context.Context, mapID string) (w, h int, err error) {
	err = s.pool.QueryRow(ctx, `SELECT width, height FROM `+s.maps()+` WHERE id = $1`, mapID).Scan(&w, &h)
	return w, h, err
}

func isForeignKeyViolation(err error, column string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return false
	}
	return column == "" || strings.Contains(pgErr.ConstraintName, column) || strings.Contains(pgErr.Detail, column)
}
