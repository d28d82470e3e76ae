package identity

import "testing"

func TestNormalize(t *testing.T) {
	if got := NormalizeUsername("  MiXed_Case "); got != "mixed_case" {
		t.Fatalf("NormalizeUsername = %q", got)
	}
	if got := NormalizeEmail(" A@B.COM"); got != "a@b.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"USER", "ADMIN"} {
		if _, ok := ParseRole(s); !ok {
			t.Fatalf("ParseRole(%q) rejected", s)
		}
	}
	for _, s := range []string{"", "admin", "ROOT"} {
		if _, ok := ParseRole(s); ok {
			t.Fatalf("ParseRole(%q) accepted", s)
		}
	}
}
