package identity

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

// PostgresStore implements Store over PostgreSQL. The pool belongs to the
// caller. Table names are schema-qualified and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
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

const userColumns = `id, username, email, password_hash, role, avatar_key, created_at, updated_at, deleted_at`

func (s *PostgresStore) users() string { return pgx.Identifier{s.schema, "users"}.Sanitize() }

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	u.Role = Role(role)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	switch {
	case username == "":
		return User{}, invalid(op, "username is required")
	case email == "":
		return User{}, invalid(op, "email is required")
	case in.PasswordHash == "":
		return User{}, invalid(op, "password hash is required")
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if _, ok := ParseRole(string(role)); !ok {
		return User{}, invalid(op, "unknown role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (
		     id, username, username_norm, email, email_norm, password_hash, role, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $7)
		 RETURNING `+userColumns,
		id, username, NormalizeUsername(username), email, in.PasswordHash, string(role), now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	return s.getBy(ctx, "identity.GetUser", "id", strings.TrimSpace(id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getBy(ctx, "identity.GetUserByUsername", "username_norm", NormalizeUsername(username))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getBy(ctx, "identity.GetUserByEmail", "email_norm", NormalizeEmail(email))
}

// getBy reads one active user. column is always a package constant.
func (s *PostgresStore) getBy(ctx context.Context, op, column, value string) (User, error) {
	if value == "" {
		return User{}, userNotFound(op)
	}
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+`
		  WHERE `+column+` = $1 AND deleted_at IS NULL`,
		value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUser applies the non-nil fields with COALESCE so that one statement
// covers every combination. The partial unique indexes ignore the row's own
// current values, so re-submitting an unchanged username never conflicts.
func (s *PostgresStore) UpdateUser(ctx context.Context, in UpdateUserInput) (User, error) {
	const op = "identity.UpdateUser"

	if in.empty() {
		return User{}, invalid(op, "nothing to update")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var username, usernameNorm, email *string
	if in.Username != nil {
		u := strings.TrimSpace(*in.Username)
		n := NormalizeUsername(u)
		username, usernameNorm = &u, &n
	}
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		email = &e
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+`
		    SET username      = COALESCE($2, username),
		        username_norm = COALESCE($3, username_norm),
		        email         = COALESCE($4, email),
		        email_norm    = COALESCE($4, email_norm),
		        password_hash = COALESCE($5, password_hash),
		        avatar_key    = COALESCE($6, avatar_key),
		        updated_at    = $7
		  WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns,
		in.ID, username, usernameNorm, email, in.PasswordHash, in.AvatarKey, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) SetRole(ctx context.Context, id string, role Role, now time.Time) (User, error) {
	const op = "identity.SetRole"

	if _, ok := ParseRole(string(role)); !ok {
		return User{}, invalid(op, "unknown role")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+` SET role = $2, updated_at = $3
		  WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns,
		id, string(role), now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) SoftDeleteUser(ctx context.Context, id string, now time.Time) error {
	const op = "identity.SoftDeleteUser"

	if now.IsZero() {
		now = time.Now().UTC()
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET deleted_at = $2, updated_at = $2
		  WHERE id = $1 AND deleted_at IS NULL`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() != 1 {
		return userNotFound(op)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteUsers(ctx context.Context, userIDs []string, now time.Time) ([]string, error) {
	const op = "identity.SoftDeleteUsers"

	if len(userIDs) == 0 {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := s.pool.Query(ctx,
		`UPDATE `+s.users()+` SET deleted_at = $2, updated_at = $2
		  WHERE id = ANY($1) AND deleted_at IS NULL
		RETURNING id`,
		userIDs, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
