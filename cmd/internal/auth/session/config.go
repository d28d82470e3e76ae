package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretBytes = 32

// Config is the runtime configuration of the session subsystem.
type Config struct {
	Issuer   string
	Audience string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration

	// Separate HMAC secrets so an access token can never pass as a refresh
	// token or the other way around.
	AccessSecret  []byte
	RefreshSecret []byte

	// RevokeOnReplay revokes the whole session when a stale refresh token is
	// presented.
	RevokeOnReplay bool
}

func DefaultConfig() Config {
	return Config{
		Issuer:     "plaza",
		Audience:   "plaza",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// Validate checks the invariants LoadConfigFromEnv enforces, for callers that
// build a Config by hand.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "" || strings.TrimSpace(c.Audience) == "":
		return fmt.Errorf("%w: issuer and audience are required", ErrConfig)
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	case c.AccessTTL >= c.RefreshTTL:
		return fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrConfig)
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return fmt.Errorf("%w: clock skew out of range", ErrConfig)
	case len(c.AccessSecret) < minSecretBytes || len(c.RefreshSecret) < minSecretBytes:
		return fmt.Errorf("%w: jwt secrets must be at least %d bytes", ErrConfig, minSecretBytes)
	case string(c.AccessSecret) == string(c.RefreshSecret):
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	return nil
}

// LoadConfigFromEnv reads:
//
//	PLAZA_JWT_ACCESS_SECRET         required, >= 32 bytes
//	PLAZA_JWT_REFRESH_SECRET        required, >= 32 bytes, different from the access secret
//	PLAZA_AUTH_ISSUER               default "plaza"
//	PLAZA_AUTH_AUDIENCE             default "plaza"
//	PLAZA_AUTH_ACCESS_TTL           default 15m
//	PLAZA_AUTH_REFRESH_TTL          default 168h
//	PLAZA_AUTH_CLOCK_SKEW           default 30s
//	PLAZA_REFRESH_REVOKE_ON_REPLAY  default false
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PLAZA_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("PLAZA_AUTH_AUDIENCE")); v != "" {
		cfg.Audience = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PLAZA_AUTH_ACCESS_TTL", &cfg.AccessTTL},
		{"PLAZA_AUTH_REFRESH_TTL", &cfg.RefreshTTL},
		{"PLAZA_AUTH_CLOCK_SKEW", &cfg.ClockSkew},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, d.key, err)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("PLAZA_REFRESH_REVOKE_ON_REPLAY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: PLAZA_REFRESH_REVOKE_ON_REPLAY: %v", ErrConfig, err)
		}
		cfg.RevokeOnReplay = b
	}

	cfg.AccessSecret = []byte(strings.TrimSpace(os.Getenv("PLAZA_JWT_ACCESS_SECRET")))
	cfg.RefreshSecret = []byte(strings.TrimSpace(os.Getenv("PLAZA_JWT_REFRESH_SECRET")))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
