package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"plaza/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development and tests. It enforces
// the same active-only uniqueness as the Postgres partial indexes.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if field, taken := s.takenLocked("", username, email); taken {
		return User{}, ConflictError{Op: op, Field: field}
	}
	u := User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[id] = u
	return u, nil
}

// takenLocked reports which field, if any, collides with another active user.
func (s *MemoryStore) takenLocked(selfID, username, email string) (string, bool) {
	un := NormalizeUsername(username)
	for _, u := range s.users {
		if u.ID == selfID || !u.Active() {
			continue
		}
		if username != "" && NormalizeUsername(u.Username) == un {
			return "username", true
		}
		if email != "" && u.Email == email {
			return "email", true
		}
	}
	return "", false
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	return s.find(ctx, "identity.GetUser", func(u User) bool { return u.ID == id })
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	n := NormalizeUsername(username)
	return s.find(ctx, "identity.GetUserByUsername", func(u User) bool { return NormalizeUsername(u.Username) == n })
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	n := NormalizeEmail(email)
	return s.find(ctx, "identity.GetUserByEmail", func(u User) bool { return u.Email == n })
}

func (s *MemoryStore) find(ctx context.Context, op string, match func(User) bool) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Active() && match(u) {
			return u, nil
		}
	}
	return User{}, userNotFound(op)
}

func (s *MemoryStore) UpdateUser(ctx context.Context, in UpdateUserInput) (User, error) {
	const op = "identity.UpdateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if in.empty() {
		return User{}, invalid(op, "nothing to update")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[in.ID]
	if !ok || !u.Active() {
		return User{}, userNotFound(op)
	}

	var username, email string
	if in.Username != nil {
		username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		email = NormalizeEmail(*in.Email)
	}
	if field, taken := s.takenLocked(u.ID, username, email); taken {
		return User{}, ConflictError{Op: op, Field: field}
	}

	if in.Username != nil {
		u.Username = username
	}
	if in.Email != nil {
		u.Email = email
	}
	if in.PasswordHash != nil {
		u.PasswordHash = *in.PasswordHash
	}
	if in.AvatarKey != nil {
		k := *in.AvatarKey
		u.AvatarKey = &k
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) SetRole(ctx context.Context, id string, role Role, now time.Time) (User, error) {
	const op = "identity.SetRole"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if _, ok := ParseRole(string(role)); !ok {
		return User{}, invalid(op, "unknown role")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active() {
		return User{}, userNotFound(op)
	}
	u.Role = role
	u.UpdatedAt = now
	s.users[id] = u
	return u, nil
}

func (s *MemoryStore) SoftDeleteUser(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(id, now) {
		return userNotFound("identity.SoftDeleteUser")
	}
	return nil
}

func (s *MemoryStore) SoftDeleteUsers(ctx context.Context, userIDs []string, now time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for _, id := range userIDs {
		if s.deleteLocked(id, now) {
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (s *MemoryStore) deleteLocked(id string, now time.Time) bool {
	u, ok := s.users[id]
	if !ok || !u.Active() {
		return false
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	u.DeletedAt = &now
	u.UpdatedAt = now
	s.users[id] = u
	return true
}
