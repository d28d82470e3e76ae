package credential

import (
	"strings"
	"testing"

	"plaza/cmd/security/password"
	"plaza/cmd/security/token"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	cfg := password.Config{Params: password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}
	h, err := New(cfg, token.NewHasher([]byte(strings.Repeat("s", token.MinKeyBytes))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestPasswordRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	enc, err := h.HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if ok, err := h.VerifyPassword(enc, "Str0ng!pass"); err != nil || !ok {
		t.Fatalf("VerifyPassword: ok=%v err=%v", ok, err)
	}
	if ok, _ := h.VerifyPassword(enc, "wrong"); ok {
		t.Fatalf("wrong password verified")
	}
	h.BurnPassword("anything")
}

func TestTokenDigestIsNotPasswordHash(t *testing.T) {
	h := newTestHasher(t)

	d := h.HashToken("tok")
	if strings.HasPrefix(d, "$argon2id$") || len(d) != 64 {
		t.Fatalf("token digest %q is not a fast hex digest", d)
	}
	if !h.TokenMatches(d, "tok") || h.TokenMatches(d, "tok2") {
		t.Fatalf("TokenMatches inconsistent")
	}
}
