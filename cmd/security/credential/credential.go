// Package credential pairs the two hashing strategies the service needs:
// a slow memory-hard hash for passwords and a fast digest for tokens.
// They are deliberately separate operations.
package credential

import (
	"fmt"

	"plaza/cmd/security/password"
	"plaza/cmd/security/token"
)

// Hasher is safe for concurrent use.
type Hasher struct {
	passwords password.Config
	tokens    token.Hasher
	dummy     string
}

func New(pw password.Config, tok token.Hasher) (*Hasher, error) {
	h := &Hasher{passwords: pw, tokens: tok}

	dummy, err := pw.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("credential: dummy hash: %w", err)
	}
	h.dummy = dummy
	return h, nil
}

func (h *Hasher) HashPassword(pw string) (string, error) {
	return h.passwords.Hash(pw)
}

// VerifyPassword reports whether pw matches encoded. Malformed hashes are
// returned as errors so callers can log them.
func (h *Hasher) VerifyPassword(encoded, pw string) (bool, error) {
	return h.passwords.Verify(encoded, pw)
}

// BurnPassword runs a verification against a fixed hash and discards the
// result. Call it when the account lookup failed so that the response time
// does not reveal whether the identifier exists.
func (h *Hasher) BurnPassword(pw string) {
	_, _ = h.passwords.Verify(h.dummy, pw)
}

func (h *Hasher) HashToken(tok string) string {
	return h.tokens.Sum(tok)
}

func (h *Hasher) TokenMatches(storedHex, tok string) bool {
	return h.tokens.Matches(storedHex, tok)
}
