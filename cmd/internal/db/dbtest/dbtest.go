// Package dbtest opens Postgres for integration tests. Tests skip unless
// PLAZA_TEST_DATABASE_URL is set; outside CI an unreachable server also skips.
package dbtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plaza/cmd/internal/db"
)

const EnvURL = "PLAZA_TEST_DATABASE_URL"

// OpenPool connects to the test database or skips t.
func OpenPool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewSchema creates a throwaway schema holding the full migrated table set
// and drops it when t finishes.
func NewSchema(t testing.TB, pool *pgxpool.Pool) string {
	t.Helper()

	var b [6]byte
	_, _ = rand.Read(b[:])
	schema := "plaza_it_" + hex.EncodeToString(b[:])
	ident := pgx.Identifier{schema}.Sanitize()

	ddl, err := db.InitialSchema()
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+ident); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+ident+` CASCADE`)
	})

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL search_path TO `+ident); err != nil {
		t.Fatalf("search_path: %v", err)
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit schema: %v", err)
	}
	return schema
}

func shouldSkip(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "deadline exceeded", "timeout", "dial tcp", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
