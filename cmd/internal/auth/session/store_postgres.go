package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the sessions table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !schemaRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	s := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PostgresStore) table() string { return pgx.Identifier{s.schema, "sessions"}.Sanitize() }

const rowColumns = `id, user_id, token_hash, user_agent, created_at, last_used_at, expires_at, revoked_at`

func scanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(&row.ID, &row.UserID, &row.TokenHash, &row.UserAgent,
		&row.CreatedAt, &row.LastUsedAt, &row.ExpiresAt, &row.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	return row, err
}

func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, user_id, token_hash, user_agent, created_at, last_used_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $5, $6)`,
		row.ID, row.UserID, row.TokenHash, row.UserAgent, row.CreatedAt, row.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM `+s.table()+` WHERE id = $1`, id))
}

func (s *PostgresStore) Rotate(ctx context.Context, p RotateParams) (Row, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Row{}, fmt.Errorf("session: rotate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A concurrent rotation blocks here and then sees the committed hash.
	row, err := scanRow(tx.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM `+s.table()+` WHERE id = $1 FOR UPDATE`, p.SessionID))
	if err != nil {
		return Row{}, err
	}
	if err := checkActive(row, p.UserID, p.Now); err != nil {
		return Row{}, err
	}
	prevHash := row.TokenHash

	ct, err := tx.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET token_hash = $2, expires_at = $3, last_used_at = $4
		  WHERE id = $1 AND revoked_at IS NULL`,
		p.SessionID, p.NewHash, p.NewExpiresAt, p.Now,
	)
	if err != nil {
		return Row{}, fmt.Errorf("session: rotate: update: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return Row{}, ErrSessionRevoked
	}

	if !p.Matches(prevHash) {
		return Row{}, ErrStaleToken
	}

	if err := tx.Commit(ctx); err != nil {
		return Row{}, fmt.Errorf("session: rotate: commit: %w", err)
	}

	now := p.Now
	row.TokenHash = p.NewHash
	row.ExpiresAt = p.NewExpiresAt
	row.LastUsedAt = &now
	return row, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id, userID string, now time.Time) (bool, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked_at = $3
		  WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID, now,
	)
	if err != nil {
		return false, fmt.Errorf("session: revoke: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked_at = $2
		  WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	return ct.RowsAffected(), nil
}

// checkActive is shared by both stores. A session owned by someone else is
// reported as missing.
func checkActive(row Row, userID string, now time.Time) error {
	switch {
	case row.UserID != userID:
		return ErrSessionNotFound
	case row.RevokedAt != nil:
		return ErrSessionRevoked
	case !row.ExpiresAt.After(now):
		return ErrSessionExpired
	}
	return nil
}
