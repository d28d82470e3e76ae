// Package app wires the plaza server: config, logging, stores, HTTP routes
// and the realtime gateway.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth"
	"plaza/cmd/internal/auth/api"
	"plaza/cmd/internal/auth/session"
	"plaza/cmd/internal/blob"
	"plaza/cmd/internal/realtime"
	"plaza/cmd/internal/world"
	"plaza/cmd/security/credential"
)

type Logger = *slog.Logger

// Settings are the subsystem configurations. LoadSettings reads them from
// the environment; tests build them by hand.
type Settings struct {
	Session  session.Config
	HTTP     api.Config
	Realtime realtime.Config
	Blob     blob.Config
	Hasher   *credential.Hasher
}

func LoadSettings(cfg Config) (Settings, error) {
	var (
		s   Settings
		err error
	)
	if s.Session, err = session.LoadConfigFromEnv(); err != nil {
		return Settings{}, err
	}
	if s.HTTP, err = api.LoadConfigFromEnv(); err != nil {
		return Settings{}, err
	}
	if s.Realtime, err = realtime.LoadConfigFromEnv(); err != nil {
		return Settings{}, err
	}
	if s.Blob, err = blob.LoadConfigFromEnv(); err != nil {
		return Settings{}, err
	}
	if s.Hasher, err = NewCredentialHasher(cfg); err != nil {
		return Settings{}, err
	}
	// The socket shares the HTTP origin allowlist unless it has its own.
	if len(s.Realtime.AllowedOrigins) == 0 {
		s.Realtime.AllowedOrigins = s.HTTP.AllowedOrigins
	}
	return s, nil
}

// App owns the process-wide resources.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	auth    *auth.Service
	handler http.Handler
}

type stores struct {
	users    identity.Store
	sessions session.Store
	world    world.Store
	auditor  api.Auditor
}

// New builds every subsystem. With cfg.DatabaseURL empty all state lives
// in memory and is lost on exit.
func New(ctx context.Context, cfg Config, s Settings, log Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if s.Hasher == nil {
		return nil, errors.New("app: nil credential hasher")
	}

	a := &App{cfg: cfg, log: log}
	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, s.Blob, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions, err := session.NewService(s.Session, st.sessions, s.Hasher)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auth, err = auth.NewService(st.users, sessions, s.Hasher, blobs, auth.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	authHandler, err := api.NewHandler(log, s.HTTP, a.auth, api.WithAuditor(st.auditor))
	if err != nil {
		a.Close()
		return nil, err
	}

	worldSvc, err := world.NewService(st.world, blobs)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := realtime.NewMetrics(reg)
	gateway := realtime.NewWSGateway(log, s.Realtime, sessions, st.world, realtime.NewRegistry(log, metrics), metrics)

	a.handler = routes{
		log:      log,
		cfg:      cfg,
		httpCfg:  s.HTTP,
		pool:     a.pool,
		gatherer: reg,
		metrics:  newHTTPMetrics(reg),
		auth:     authHandler,
		world:    world.NewHandler(log, worldSvc, sessions, s.HTTP.MaxBodyBytes),
		ws:       gateway,
	}.handler()
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("db.disabled.inmemory_store")
		return stores{
			users:    identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			world:    world.NewMemoryStore(),
			auditor:  api.LogAuditor{Log: a.log},
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, err
	}
	a.pool = pool
	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

	var st stores
	if st.users, err = identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema)); err != nil {
		pool.Close()
		return stores{}, err
	}
	if st.sessions, err = session.NewPostgresStore(pool, session.WithSchema(a.cfg.DBSchema)); err != nil {
		pool.Close()
		return stores{}, err
	}
	if st.world, err = world.NewPostgresStore(pool, world.WithSchema(a.cfg.DBSchema)); err != nil {
		pool.Close()
		return stores{}, err
	}
	if st.auditor, err = api.NewPostgresAuditor(pool, a.cfg.DBSchema, a.log); err != nil {
		pool.Close()
		return stores{}, err
	}
	return st, nil
}

func newBlobStore(ctx context.Context, cfg blob.Config, log Logger) (blob.Store, error) {
	if !cfg.Enabled() {
		log.Warn("blob.disabled.inmemory_store")
		return blob.NewMemoryStore(), nil
	}
	st, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("blob.enabled.s3", "bucket", cfg.Bucket, "region", cfg.Region)
	return st, nil
}

// Handler is the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Auth exposes the account service for operator commands.
func (a *App) Auth() *auth.Service { return a.auth }

// Close releases the database pool. It is safe to call more than once.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
