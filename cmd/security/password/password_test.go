package password

import (
	"strings"
	"testing"
)

// cheap keeps tests fast; the encoding path is identical to production.
func cheap() Config {
	return Config{Params: Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}
}

func TestHashAndVerify(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("Correct-Horse-9")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", h)
	}

	ok, err := cfg.Verify(h, "Correct-Horse-9")
	if err != nil || !ok {
		t.Fatalf("Verify match: ok=%v err=%v", ok, err)
	}

	ok, err = cfg.Verify(h, "Correct-Horse-8")
	if err != nil || ok {
		t.Fatalf("Verify mismatch: ok=%v err=%v", ok, err)
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := cheap()
	a, _ := cfg.Hash("Same-Pass-1")
	b, _ := cfg.Hash("Same-Pass-1")
	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheap()
	for _, h := range []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := cfg.Verify(h, "whatever")
		if err != ErrInvalidHash || ok {
			t.Fatalf("Verify(%q) = %v, %v; want false, ErrInvalidHash", h, ok, err)
		}
	}
}

func TestVerify_RefusesExpensiveParams(t *testing.T) {
	strong := cheap()
	strong.Params.Iterations = 5
	h, err := strong.Hash("Correct-Horse-9")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := cheap().Verify(h, "Correct-Horse-9")
	if err != ErrInvalidHash || ok {
		t.Fatalf("got %v, %v; want false, ErrInvalidHash", ok, err)
	}
}

func TestHash_TooLong(t *testing.T) {
	if _, err := cheap().Hash(strings.Repeat("a", MaxLength*4+1)); err != ErrPasswordTooLong {
		t.Fatalf("err = %v, want ErrPasswordTooLong", err)
	}
}
