package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth/session"
	"plaza/cmd/internal/blob"
)

// PasswordHasher is the slow-hash half of the credential hasher.
type PasswordHasher interface {
	HashPassword(pw string) (string, error)
	VerifyPassword(encoded, pw string) (bool, error)
	BurnPassword(pw string)
}

type Service struct {
	log      *slog.Logger
	users    identity.Store
	sessions *session.Service
	hasher   PasswordHasher
	blobs    blob.Store
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now; tests use it to step through token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(users identity.Store, sessions *session.Service, hasher PasswordHasher, blobs blob.Store, opts ...Option) (*Service, error) {
	if users == nil || sessions == nil || hasher == nil || blobs == nil {
		return nil, errors.New("auth: nil dependency")
	}
	s := &Service{
		log:      slog.Default(),
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		blobs:    blobs,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Sessions exposes the session service for access-token verification.
func (s *Service) Sessions() *session.Service { return s.sessions }

type SignupInput struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,max=254,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

// Signup creates a USER account, or an ADMIN account when actor is an
// admin. Handle and email conflicts come from the store's unique indexes.
func (s *Service) Signup(ctx context.Context, actor *session.Principal, in SignupInput) (identity.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = identity.NormalizeEmail(in.Email)
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))

	ve := &ValidationError{}
	if err := merge(ve, Validate(in)); err != nil {
		return identity.User{}, err
	}
	checkPassword(ve, "password", in.Password)
	if err := ve.orNil(); err != nil {
		return identity.User{}, err
	}

	role := identity.RoleUser
	if in.Role == string(identity.RoleAdmin) {
		if actor == nil || actor.Role != identity.RoleAdmin {
			return identity.User{}, ErrForbidden
		}
		role = identity.RoleAdmin
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return identity.User{}, fmt.Errorf("auth.signup: hash: %w", err)
	}
	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Now:          s.now(),
	})
	if err != nil {
		return identity.User{}, err
	}
	s.log.Info("auth.signup.ok", "user_id", u.ID, "role", u.Role)
	return u, nil
}

type SigninInput struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

// Tokens is the credential pair handed to a client after signin or refresh.
type Tokens struct {
	Access  session.AccessToken
	Refresh session.Refresh
	User    identity.User
}

// Signin verifies identifier (email when it contains '@', else username)
// and password, opens a session and mints both tokens.
func (s *Service) Signin(ctx context.Context, in SigninInput, userAgent string) (Tokens, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	if err := Validate(in); err != nil {
		return Tokens{}, err
	}

	u, err := s.lookup(ctx, in.Identifier)
	if err != nil {
		if !identity.IsNotFound(err) {
			return Tokens{}, err
		}
		s.hasher.BurnPassword(in.Password)
		return Tokens{}, ErrUnauthorized
	}
	ok, err := s.hasher.VerifyPassword(u.PasswordHash, in.Password)
	if err != nil {
		s.log.Error("auth.signin.verify.fail", "user_id", u.ID, "err", err)
		return Tokens{}, ErrUnauthorized
	}
	if !ok {
		return Tokens{}, ErrUnauthorized
	}

	now := s.now()
	ref, err := s.sessions.Open(ctx, now, u.ID, userAgent)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth.signin: open session: %w", err)
	}
	acc, err := s.sessions.IssueAccess(principal(u), now)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth.signin: access token: %w", err)
	}
	return Tokens{Access: acc, Refresh: ref, User: u}, nil
}

// Refresh rotates presented in place and mints a new access token from the
// current user row, so role changes show up here.
func (s *Service) Refresh(ctx context.Context, presented string) (Tokens, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Tokens{}, invalidField("refresh_token", "required", "is required")
	}

	now := s.now()
	ref, err := s.sessions.Rotate(ctx, now, presented)
	if err != nil {
		if session.Unauthenticated(err) {
			s.log.Info("auth.refresh.reject", "reason", err.Error())
			return Tokens{}, ErrUnauthorized
		}
		return Tokens{}, fmt.Errorf("auth.refresh: %w", err)
	}

	u, err := s.users.GetUser(ctx, ref.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			if rerr := s.sessions.Revoke(ctx, now, ref.SessionID, ref.UserID); rerr != nil {
				s.log.Error("auth.refresh.revoke.fail", "session_id", ref.SessionID, "err", rerr)
			}
			return Tokens{}, ErrUnauthorized
		}
		return Tokens{}, fmt.Errorf("auth.refresh: load user: %w", err)
	}
	acc, err := s.sessions.IssueAccess(principal(u), now)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth.refresh: access token: %w", err)
	}
	return Tokens{Access: acc, Refresh: ref, User: u}, nil
}

// Signout revokes the session behind presented. The error is informational
// only; callers report success regardless.
func (s *Service) Signout(ctx context.Context, presented string) (session.RefreshClaims, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return session.RefreshClaims{}, nil
	}
	claims, err := s.sessions.Close(ctx, s.now(), presented)
	if err != nil && session.Unauthenticated(err) {
		return claims, ErrUnauthorized
	}
	return claims, err
}

// Me returns the active user behind an access token.
func (s *Service) Me(ctx context.Context, userID string) (identity.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if identity.IsNotFound(err) {
		return identity.User{}, ErrUnauthorized
	}
	return u, err
}

func (s *Service) lookup(ctx context.Context, identifier string) (identity.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.GetUserByEmail(ctx, identifier)
	}
	return s.users.GetUserByUsername(ctx, identifier)
}

// reverify loads userID and checks pw against it. Both a missing user and a
// wrong password are ErrUnauthorized.
func (s *Service) reverify(ctx context.Context, userID, pw string) (identity.User, error) {
	if pw == "" {
		return identity.User{}, invalidField("current_password", "required", "is required")
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			s.hasher.BurnPassword(pw)
			return identity.User{}, ErrUnauthorized
		}
		return identity.User{}, err
	}
	ok, err := s.hasher.VerifyPassword(u.PasswordHash, pw)
	if err != nil || !ok {
		return identity.User{}, ErrUnauthorized
	}
	return u, nil
}

func principal(u identity.User) session.Principal {
	return session.Principal{UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}
