package session

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza/cmd/identity"
)

func TestCodec_AccessRoundTrip(t *testing.T) {
	c, err := NewCodec(testConfig())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	p := Principal{UserID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Username: "alice", Email: "a@example.com", Role: identity.RoleAdmin}

	tok, exp, err := c.IssueAccess(p, now)
	require.NoError(t, err)
	assert.True(t, exp.Equal(now.Add(15*time.Minute)), "exp = %v", exp)

	claims, err := c.VerifyAccess(tok, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, p, claims.Principal())
	assert.Equal(t, "plaza", claims.Issuer)
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	c, err := NewCodec(testConfig())
	require.NoError(t, err)

	now := time.Now().UTC()
	tok, exp, err := c.IssueRefresh("user-1", "session-1", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(7*24*time.Hour), exp, time.Second)

	claims, err := c.VerifyRefresh(tok, now)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "session-1", claims.SessionID())
}

func TestCodec_RefreshTokensAreUnique(t *testing.T) {
	c, err := NewCodec(testConfig())
	require.NoError(t, err)

	now := time.Now().UTC()
	a, _, err := c.IssueRefresh("user-1", "session-1", now)
	require.NoError(t, err)
	b, _, err := c.IssueRefresh("user-1", "session-1", now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_RejectsCrossUse(t *testing.T) {
	c, err := NewCodec(testConfig())
	require.NoError(t, err)
	now := time.Now().UTC()

	access, _, err := c.IssueAccess(Principal{UserID: "u", Role: identity.RoleUser}, now)
	require.NoError(t, err)
	refresh, _, err := c.IssueRefresh("u", "s", now)
	require.NoError(t, err)

	_, err = c.VerifyRefresh(access, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.VerifyAccess(refresh, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsExpiredAndTampered(t *testing.T) {
	c, err := NewCodec(testConfig())
	require.NoError(t, err)
	now := time.Now().UTC()

	tok, _, err := c.IssueAccess(Principal{UserID: "u", Role: identity.RoleUser}, now)
	require.NoError(t, err)

	_, err = c.VerifyAccess(tok, now.Add(16*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = c.VerifyAccess(forged, now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.VerifyAccess("", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_RejectsForeignIssuerAndAlgorithm(t *testing.T) {
	cfg := testConfig()
	c, err := NewCodec(cfg)
	require.NoError(t, err)
	now := time.Now().UTC()

	other := cfg
	other.Issuer = "someone-else"
	oc, err := NewCodec(other)
	require.NoError(t, err)
	tok, _, err := oc.IssueAccess(Principal{UserID: "u", Role: identity.RoleUser}, now)
	require.NoError(t, err)
	_, err = c.VerifyAccess(tok, now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		Type: typeAccess,
		Role: identity.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u", Issuer: cfg.Issuer, Audience: jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.VerifyAccess(unsigned, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
