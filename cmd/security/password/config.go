package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the hashing surface of this package. The policy rules are fixed
// and live in policy.go.
type Config struct {
	Params Params
}

func DefaultConfig() Config {
	lanes := runtime.NumCPU()
	if lanes <= 0 {
		lanes = 1
	}
	if lanes > 4 {
		lanes = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- clamped to [1..4]
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// LoadConfigFromEnv overlays PLAZA_ARGON2_* variables on DefaultConfig:
//
//	PLAZA_ARGON2_MEMORY_KIB   8192..1048576
//	PLAZA_ARGON2_ITERATIONS   1..20
//	PLAZA_ARGON2_PARALLELISM  1..64
//	PLAZA_ARGON2_SALT_LEN     8..64
//	PLAZA_ARGON2_KEY_LEN      16..64
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	fields := []struct {
		key      string
		min, max uint32
		dst      *uint32
	}{
		{"PLAZA_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"PLAZA_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"PLAZA_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"PLAZA_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range fields {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		u, err := atou32(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, f.key, err)
		}
		*f.dst = u
	}

	if v, ok := os.LookupEnv("PLAZA_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, math.MaxUint8)
		if err == nil && u > 64 {
			err = fmt.Errorf("out of range [1..64]")
		}
		if err != nil {
			return Config{}, fmt.Errorf("%w: PLAZA_ARGON2_PARALLELISM: %v", ErrConfig, err)
		}
		cfg.Params.Parallelism = uint8(u) // #nosec G115 -- bounded above
	}

	return cfg, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
