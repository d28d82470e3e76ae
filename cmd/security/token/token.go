package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// #nosec G101 -- environment variable name, not a credential.
	HMACEnvKey  = "PLAZA_TOKEN_HMAC_KEY"
	MinKeyBytes = 32
	hexLen      = sha256.Size * 2
)

// Hasher produces storage digests for tokens. The zero value hashes with
// plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. A nil or empty key selects SHA-256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// HasherFromEnv builds a Hasher from PLAZA_TOKEN_HMAC_KEY. When require is
// true a missing key is an error; otherwise it falls back to SHA-256.
func HasherFromEnv(require bool) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		if require {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if len(raw) < MinKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

// Keyed reports whether h uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Sum returns the hex digest of tok.
func (h Hasher) Sum(tok string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(tok))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(tok))
	return hex.EncodeToString(m.Sum(nil))
}

// Matches reports whether tok hashes to storedHex.
func (h Hasher) Matches(storedHex, tok string) bool {
	return Equal(storedHex, h.Sum(tok))
}

// Equal compares two hex digests in constant time. Anything that is not a
// 64-char digest never matches.
func Equal(a, b string) bool {
	if len(a) != hexLen || len(b) != hexLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
