package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plaza/cmd/identity/ids"
)

// TokenHasher is the fast-hash half of the credential hasher.
type TokenHasher interface {
	HashToken(tok string) string
	TokenMatches(storedHex, tok string) bool
}

// Service runs the session lifecycle: open at signin, rotate at refresh,
// close at signout. It also issues and verifies access tokens.
type Service struct {
	cfg    Config
	codec  *Codec
	store  Store
	hasher TokenHasher
}

func NewService(cfg Config, store Store, hasher TokenHasher) (*Service, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil || hasher == nil {
		return nil, fmt.Errorf("session: nil store or hasher")
	}
	return &Service{cfg: cfg, codec: codec, store: store, hasher: hasher}, nil
}

// Refresh is a freshly signed refresh token. Token goes to the client only.
// TTL is the configured lifetime; ExpiresAt is truncated to whole seconds
// by the JWT encoding.
type Refresh struct {
	SessionID string
	UserID    string
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// AccessToken is a signed access token and its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// ExpiresIn is the lifetime in whole seconds as reported to clients.
func (a AccessToken) ExpiresIn() int64 {
	return int64(a.TTL / time.Second)
}

// Open creates a session for userID and returns its first refresh token.
func (s *Service) Open(ctx context.Context, now time.Time, userID, userAgent string) (Refresh, error) {
	sessionID, err := ids.NewULID(now)
	if err != nil {
		return Refresh{}, err
	}
	tok, exp, err := s.codec.IssueRefresh(userID, sessionID, now)
	if err != nil {
		return Refresh{}, err
	}

	row := Row{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: s.hasher.HashToken(tok),
		UserAgent: trimAgent(userAgent),
		CreatedAt: now,
		ExpiresAt: exp,
	}
	if err := s.store.Create(ctx, row); err != nil {
		return Refresh{}, err
	}
	return Refresh{SessionID: sessionID, UserID: userID, Token: tok, ExpiresAt: exp, TTL: s.cfg.RefreshTTL}, nil
}

// Rotate exchanges presented for a new refresh token on the same session
// and slides the session expiry. Any authentication failure is one of the
// errors Unauthenticated recognizes.
func (s *Service) Rotate(ctx context.Context, now time.Time, presented string) (Refresh, error) {
	claims, err := s.codec.VerifyRefresh(presented, now)
	if err != nil {
		return Refresh{}, err
	}
	userID, sessionID := claims.UserID(), claims.SessionID()

	next, exp, err := s.codec.IssueRefresh(userID, sessionID, now)
	if err != nil {
		return Refresh{}, err
	}

	_, err = s.store.Rotate(ctx, RotateParams{
		SessionID:    sessionID,
		UserID:       userID,
		Matches:      func(stored string) bool { return s.hasher.TokenMatches(stored, presented) },
		NewHash:      s.hasher.HashToken(next),
		NewExpiresAt: exp,
		Now:          now,
	})
	if err != nil {
		if errors.Is(err, ErrStaleToken) && s.cfg.RevokeOnReplay {
			if _, rerr := s.store.Revoke(ctx, sessionID, userID, now); rerr != nil {
				return Refresh{}, errors.Join(err, rerr)
			}
		}
		return Refresh{}, err
	}
	return Refresh{SessionID: sessionID, UserID: userID, Token: next, ExpiresAt: exp, TTL: s.cfg.RefreshTTL}, nil
}

// Close revokes the session behind presented. It reports ErrSessionNotFound
// when there was nothing active to revoke.
func (s *Service) Close(ctx context.Context, now time.Time, presented string) (RefreshClaims, error) {
	claims, err := s.codec.VerifyRefresh(presented, now)
	if err != nil {
		return RefreshClaims{}, err
	}
	ok, err := s.store.Revoke(ctx, claims.SessionID(), claims.UserID(), now)
	if err != nil {
		return claims, err
	}
	if !ok {
		return claims, ErrSessionNotFound
	}
	return claims, nil
}

// Revoke revokes one known session regardless of which token is current.
func (s *Service) Revoke(ctx context.Context, now time.Time, sessionID, userID string) error {
	_, err := s.store.Revoke(ctx, sessionID, userID, now)
	return err
}

// CloseAll revokes every active session of userID.
func (s *Service) CloseAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	return s.store.RevokeAllForUser(ctx, userID, now)
}

func (s *Service) IssueAccess(p Principal, now time.Time) (AccessToken, error) {
	tok, exp, err := s.codec.IssueAccess(p, now)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: tok, ExpiresAt: exp, TTL: s.cfg.AccessTTL}, nil
}

func (s *Service) VerifyAccess(tok string, now time.Time) (AccessClaims, error) {
	return s.codec.VerifyAccess(tok, now)
}

func trimAgent(ua string) *string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return nil
	}
	if len(ua) > 512 {
		ua = strings.ToValidUTF8(ua[:512], "")
	}
	return &ua
}
