package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one security-relevant action.
type AuditEvent struct {
	Action    string
	UserID    string
	SessionID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

// LogAuditor writes audit events to the structured log.
type LogAuditor struct{ Log *slog.Logger }

func (a LogAuditor) Record(ctx context.Context, ev AuditEvent) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"action", ev.Action, "request_id", RequestID(ctx)}
	if ev.UserID != "" {
		attrs = append(attrs, "user_id", ev.UserID)
	}
	if ev.SessionID != "" {
		attrs = append(attrs, "session_id", ev.SessionID)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	for k, v := range ev.Meta {
		attrs = append(attrs, "meta."+k, v)
	}
	log.Info("audit", attrs...)
}

// PostgresAuditor appends to the audit_log table. Failures are logged and
// never reach the request.
type PostgresAuditor struct {
	pool  *pgxpool.Pool
	table string
	log   *slog.Logger
}

func NewPostgresAuditor(pool *pgxpool.Pool, schema string, log *slog.Logger) (*PostgresAuditor, error) {
	if pool == nil {
		return nil, fmt.Errorf("api: nil pool")
	}
	if schema == "" {
		schema = "public"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize(), log: log}, nil
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}
	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	// The request may already be finished; give the insert its own budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, nilIfEmpty(ev.UserID), nilIfEmpty(ev.SessionID), action, ipVal, nilIfEmpty(ev.UserAgent), metaVal)
	if err != nil {
		a.log.Error("audit.insert.fail", "err", err, "action", action)
	}
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	if len(v) > 512 {
		v = strings.ToValidUTF8(v[:512], "")
	}
	return v
}
