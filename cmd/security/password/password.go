package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = argon2.Version

// Hash derives an Argon2id key for password and returns the PHC-encoded string.
// Policy checks are the caller's job; Hash only refuses inputs longer than
// MaxLength four-byte runes could ever be, so hashing cost stays bounded.
func (c Config) Hash(password string) (string, error) {
	if len(password) > MaxLength*4 {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		c.Params.Iterations, c.Params.MemoryKiB, c.Params.Parallelism, c.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB, c.Params.Iterations, c.Params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed or
// out-of-bounds hash yields ErrInvalidHash.
func (c Config) Verify(encoded, password string) (bool, error) {
	if len(password) > MaxLength*4 {
		return false, nil
	}

	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if !acceptable(p, c.Params) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// acceptable lets older, cheaper hashes verify but rejects anything more than
// twice the configured cost.
func acceptable(got, limit Params) bool {
	switch {
	case got.MemoryKiB > limit.MemoryKiB*2:
		return false
	case got.Iterations > limit.Iterations*2:
		return false
	case uint32(got.Parallelism) > uint32(limit.Parallelism)*2:
		return false
	case got.SaltLength < 8 || got.SaltLength > 64:
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, lanes uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &lanes); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || lanes == 0 || lanes > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(lanes),      // #nosec G115 -- checked above
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by acceptable()
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by acceptable()
	}, salt, key, nil
}
