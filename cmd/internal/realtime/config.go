package realtime

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrConfig = errors.New("realtime config invalid")

// Config tunes the gateway. Every field has an env override under PLAZA_WS_.
type Config struct {
	// SendBuffer is the per-connection outbound queue length. A full queue
	// drops the frame for that peer only.
	SendBuffer int

	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	MaxPingFailures int

	// Inbound token bucket per connection.
	RatePerSecond float64
	RateBurst     int

	MaxFrameBytes int64

	// AllowedOrigins lists cross-origin browser origins permitted to
	// connect. Same-host origins are always accepted.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:      64,
		WriteTimeout:    5 * time.Second,
		PingInterval:    25 * time.Second,
		PingTimeout:     5 * time.Second,
		MaxPingFailures: 3,
		RatePerSecond:   20,
		RateBurst:       40,
		MaxFrameBytes:   4 << 10,
	}
}

func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.SendBuffer, err = envInt("PLAZA_WS_SEND_BUFFER", cfg.SendBuffer); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = envDuration("PLAZA_WS_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = envDuration("PLAZA_WS_PING_INTERVAL", cfg.PingInterval); err != nil {
		return Config{}, err
	}
	if cfg.PingTimeout, err = envDuration("PLAZA_WS_PING_TIMEOUT", cfg.PingTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxPingFailures, err = envInt("PLAZA_WS_MAX_PING_FAILURES", cfg.MaxPingFailures); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = envInt("PLAZA_WS_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	maxFrame, err := envInt("PLAZA_WS_MAX_FRAME_BYTES", int(cfg.MaxFrameBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxFrameBytes = int64(maxFrame)
	if raw := strings.TrimSpace(os.Getenv("PLAZA_WS_RATE_PER_SECOND")); raw != "" {
		f, perr := strconv.ParseFloat(raw, 64)
		if perr != nil || f <= 0 {
			return Config{}, fmt.Errorf("%w: PLAZA_WS_RATE_PER_SECOND=%q", ErrConfig, raw)
		}
		cfg.RatePerSecond = f
	}
	cfg.AllowedOrigins = envCSV("PLAZA_WS_ALLOWED_ORIGINS")
	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q must be a positive integer", ErrConfig, key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s=%q must be a positive duration", ErrConfig, key, v)
	}
	return d, nil
}

func envCSV(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
