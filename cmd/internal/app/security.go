package app

import (
	"errors"
	"fmt"

	"plaza/cmd/security/credential"
	"plaza/cmd/security/password"
	"plaza/cmd/security/token"
)

// NewCredentialHasher builds the password and token hasher from the
// environment and enforces the token HMAC policy.
func NewCredentialHasher(cfg Config) (*credential.Hasher, error) {
	tok, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return nil, fmt.Errorf("security policy: PLAZA_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, token.MinKeyBytes)
		default:
			return nil, err
		}
	}
	if cfg.RequireTokenHMAC && !tok.Keyed() {
		return nil, errors.New("security policy: token hasher is not in HMAC mode")
	}

	pw, err := password.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return credential.New(pw, tok)
}
