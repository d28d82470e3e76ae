package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"plaza/cmd/identity"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"

	// Longest token string we are willing to parse.
	maxTokenLen = 4096
)

// Principal is the identity snapshot minted into an access token.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Role     identity.Role
}

// AccessClaims is the verified content of an access token. Subject is the
// user id.
type AccessClaims struct {
	Type     string        `json:"typ"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Role     identity.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessClaims) UserID() string { return c.Subject }

func (c AccessClaims) Principal() Principal {
	return Principal{UserID: c.Subject, Username: c.Username, Email: c.Email, Role: c.Role}
}

// RefreshClaims is the verified content of a refresh token. Subject is the
// user id and ID (jti) is the session id. Nonce makes every issued token
// unique even when two are minted within the same second.
type RefreshClaims struct {
	Type  string `json:"typ"`
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

func (c RefreshClaims) UserID() string    { return c.Subject }
func (c RefreshClaims) SessionID() string { return c.ID }

// Codec signs and verifies both token kinds.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) registered(subject, id string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{c.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        id,
	}
}

// IssueAccess signs an access token for p.
func (c *Codec) IssueAccess(p Principal, now time.Time) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, fmt.Errorf("session: issue access: empty user id")
	}
	claims := AccessClaims{
		Type:             typeAccess,
		Username:         p.Username,
		Email:            p.Email,
		Role:             p.Role,
		RegisteredClaims: c.registered(p.UserID, "", now, c.cfg.AccessTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign access: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token bound to sessionID.
func (c *Codec) IssueRefresh(userID, sessionID string, now time.Time) (string, time.Time, error) {
	if userID == "" || sessionID == "" {
		return "", time.Time{}, fmt.Errorf("session: issue refresh: empty user or session id")
	}
	var n [16]byte
	if _, err := rand.Read(n[:]); err != nil {
		return "", time.Time{}, fmt.Errorf("session: nonce: %w", err)
	}
	claims := RefreshClaims{
		Type:             typeRefresh,
		Nonce:            base64.RawURLEncoding.EncodeToString(n[:]),
		RegisteredClaims: c.registered(userID, sessionID, now, c.cfg.RefreshTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign refresh: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (c *Codec) VerifyAccess(tok string, now time.Time) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(tok, now, c.cfg.AccessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.Type != typeAccess || claims.Subject == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	if _, ok := identity.ParseRole(string(claims.Role)); !ok {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) VerifyRefresh(tok string, now time.Time) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(tok, now, c.cfg.RefreshSecret, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.Type != typeRefresh || claims.Subject == "" || claims.ID == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) parse(tok string, now time.Time, secret []byte, claims jwt.Claims) error {
	if tok == "" || len(tok) > maxTokenLen {
		return ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithLeeway(c.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err := parser.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	return nil
}
