package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_FormatsRequestFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))
	log.Info("http.request",
		"method", "post",
		"path", "/auth/signin",
		"status", 401,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"user_agent", "curl 8.0",
	)

	out := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"method=POST",
		"path=/auth/signin",
		"status=401",
		"class=4xx",
		"duration=12ms",
		`user_agent="curl 8.0"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).With("conn_id", "c1").WithGroup("room")
	log.Info("ws.room.join", "id", "s1")

	out := buf.String()
	if !strings.Contains(out, "conn_id=c1") {
		t.Fatalf("missing handler attr: %q", out)
	}
	if !strings.Contains(out, "room.id=s1") {
		t.Fatalf("missing grouped attr: %q", out)
	}
}

func TestPrettyHandler_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))
	log.Info("quiet")
	log.Warn("loud")

	if strings.Contains(buf.String(), "quiet") {
		t.Fatalf("info record should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestPrettyHandler_Colors(t *testing.T) {
	t.Parallel()

	if got := colorizeStatusCode(503, true); got != ansiRed+"503"+ansiReset {
		t.Fatalf("colorizeStatusCode(503)=%q", got)
	}
	if got := colorizeStatusCode(204, false); got != "204" {
		t.Fatalf("colorizeStatusCode(204, no color)=%q", got)
	}
	if got := quoteIfNeeded(""); got != `""` {
		t.Fatalf("quoteIfNeeded(empty)=%q", got)
	}
}
