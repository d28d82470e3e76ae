package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-level configuration. Subsystems (session, api,
// realtime, blob, password) read their own PLAZA_* variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// Empty selects the in-memory stores.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool

	// Refuse to start without PLAZA_TOKEN_HMAC_KEY.
	RequireTokenHMAC bool
}

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LoadEnvFile loads PLAZA_ENV_FILE, or ./.env when that is unset. Variables
// already present in the environment win. A missing default .env is fine;
// a missing explicit file is not.
func LoadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("PLAZA_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %v", ErrConfig, path, err)
	}
	return nil
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var e envReader
	cfg := Config{
		HTTPAddr:  e.str("PLAZA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  e.str("PLAZA_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(e.str("PLAZA_LOG_FORMAT", "json")),

		ReadHeaderTimeout: e.duration("PLAZA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       e.duration("PLAZA_HTTP_READ_TIMEOUT", 15*time.Second),
		IdleTimeout:       e.duration("PLAZA_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.positiveInt("PLAZA_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   e.duration("PLAZA_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: e.str("PLAZA_DATABASE_URL", ""),
		DBSchema:    e.str("PLAZA_DB_SCHEMA", "public"),
		DBMaxConns:  e.int32("PLAZA_DB_MAX_CONNS", 10),
		DBMinConns:  e.int32("PLAZA_DB_MIN_CONNS", 0),

		ReadinessRequireDB: e.boolean("PLAZA_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   e.boolean("PLAZA_REQUIRE_TOKEN_HMAC", false),
	}
	if err := e.err(); err != nil {
		return Config{}, err
	}
	switch cfg.LogFormat {
	case "json", "pretty":
	default:
		return Config{}, fmt.Errorf("%w: PLAZA_LOG_FORMAT=%q must be json or pretty", ErrConfig, cfg.LogFormat)
	}
	if !schemaRe.MatchString(cfg.DBSchema) {
		return Config{}, fmt.Errorf("%w: PLAZA_DB_SCHEMA=%q is not a valid identifier", ErrConfig, cfg.DBSchema)
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("%w: PLAZA_DB_MIN_CONNS exceeds PLAZA_DB_MAX_CONNS", ErrConfig)
	}
	return cfg, nil
}
