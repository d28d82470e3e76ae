package session

import (
	"strings"
	"testing"

	"plaza/cmd/security/token"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.RefreshSecret = []byte(strings.Repeat("r", 32))
	return cfg
}

type sha256Hasher struct{ h token.Hasher }

func (s sha256Hasher) HashToken(tok string) string { return s.h.Sum(tok) }
func (s sha256Hasher) TokenMatches(storedHex, tok string) bool {
	return s.h.Matches(storedHex, tok)
}

func newTestService(t *testing.T, cfg Config, store Store) *Service {
	t.Helper()
	svc, err := NewService(cfg, store, sha256Hasher{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}
