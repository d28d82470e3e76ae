package identity

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts exactly "USER" or "ADMIN".
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// User is the canonical security principal. PasswordHash is an Argon2id PHC
// string and must never leave the service layer.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	AvatarKey    *string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (u User) Active() bool { return u.DeletedAt == nil }

type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// UpdateUserInput changes only the non-nil fields.
type UpdateUserInput struct {
	ID           string
	Username     *string
	Email        *string
	PasswordHash *string
	AvatarKey    *string
	Now          time.Time
}

func (in UpdateUserInput) empty() bool {
	return in.Username == nil && in.Email == nil && in.PasswordHash == nil && in.AvatarKey == nil
}

// Store is the user persistence boundary. Every read returns active users
// only; soft-deleted users are reported as NotFoundError. Uniqueness
// violations surface as ConflictError from the write itself.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, in UpdateUserInput) (User, error)
	SetRole(ctx context.Context, id string, role Role, now time.Time) (User, error)
	SoftDeleteUser(ctx context.Context, id string, now time.Time) error
	// SoftDeleteUsers deletes the active users among ids and returns the ids
	// it actually deleted.
	SoftDeleteUsers(ctx context.Context, ids []string, now time.Time) ([]string, error)
}
