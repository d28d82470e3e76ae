package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrConfig = errors.New("app config invalid")

// envReader reads typed variables and collects every parse failure so a
// misconfigured deploy reports all its problems at once.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q must be %s", ErrConfig, key, v, want))
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "a boolean")
		return def
	}
	return b
}

func (e *envReader) positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.fail(key, v, "a positive integer")
		return def
	}
	return n
}

func (e *envReader) int32(key string, def int32) int32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		e.fail(key, v, "a non-negative 32-bit integer")
		return def
	}
	return int32(n)
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(key, v, "a positive duration")
		return def
	}
	return d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
