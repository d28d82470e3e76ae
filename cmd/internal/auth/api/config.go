package api

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrConfig = errors.New("api config invalid")

const (
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/auth"
)

// Config controls the HTTP surface.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64
	// MaxUploadBytes bounds multipart avatar uploads.
	MaxUploadBytes int64
	CookieSecure   bool
	CookieDomain   string

	// Per-client-IP token buckets. The auth bucket applies to /auth/*.
	RatePerSecond     float64
	RateBurst         int
	AuthRatePerSecond float64
	AuthRateBurst     int
	RateIdleTTL       time.Duration

	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		MaxUploadBytes:    6 << 20,
		CookieSecure:      true,
		RatePerSecond:     20,
		RateBurst:         40,
		AuthRatePerSecond: 1,
		AuthRateBurst:     10,
		RateIdleTTL:       10 * time.Minute,
	}
}

// LoadConfigFromEnv reads PLAZA_HTTP_* variables over DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.TrustProxy, err = envBool("PLAZA_HTTP_TRUST_PROXY", cfg.TrustProxy); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = envBool("PLAZA_HTTP_COOKIE_SECURE", cfg.CookieSecure); err != nil {
		return Config{}, err
	}
	cfg.CookieDomain = strings.TrimSpace(os.Getenv("PLAZA_HTTP_COOKIE_DOMAIN"))
	if cfg.MaxBodyBytes, err = envInt64("PLAZA_HTTP_MAX_BODY_BYTES", cfg.MaxBodyBytes); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = envFloat("PLAZA_HTTP_RATE_PER_SECOND", cfg.RatePerSecond); err != nil {
		return Config{}, err
	}
	burst, err := envInt64("PLAZA_HTTP_RATE_BURST", int64(cfg.RateBurst))
	if err != nil {
		return Config{}, err
	}
	cfg.RateBurst = int(burst)
	if cfg.AuthRatePerSecond, err = envFloat("PLAZA_HTTP_AUTH_RATE_PER_SECOND", cfg.AuthRatePerSecond); err != nil {
		return Config{}, err
	}
	burst, err = envInt64("PLAZA_HTTP_AUTH_RATE_BURST", int64(cfg.AuthRateBurst))
	if err != nil {
		return Config{}, err
	}
	cfg.AuthRateBurst = int(burst)

	if raw := strings.TrimSpace(os.Getenv("PLAZA_HTTP_ALLOWED_ORIGINS")); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrConfig, key, v)
	}
	return b, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q must be a positive integer", ErrConfig, key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%w: %s=%q must be a positive number", ErrConfig, key, v)
	}
	return f, nil
}
