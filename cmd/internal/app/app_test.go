package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza/cmd/internal/auth/api"
	"plaza/cmd/internal/auth/session"
	"plaza/cmd/internal/realtime"
	"plaza/cmd/security/credential"
	"plaza/cmd/security/password"
	"plaza/cmd/security/token"
	v1 "plaza/shared/contracts/realtime/v1"
)

const testPassword = "Str0ng!pass"

func testSettings(t *testing.T) Settings {
	t.Helper()
	pw := password.Config{Params: password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}
	hasher, err := credential.New(pw, token.NewHasher(nil))
	require.NoError(t, err)

	sess := session.DefaultConfig()
	sess.AccessSecret = []byte(strings.Repeat("a", 32))
	sess.RefreshSecret = []byte(strings.Repeat("r", 32))

	httpCfg := api.DefaultConfig()
	httpCfg.CookieSecure = false

	return Settings{
		Session:  sess,
		HTTP:     httpCfg,
		Realtime: realtime.DefaultConfig(),
		Hasher:   hasher,
	}
}

func newTestApp(t *testing.T, s Settings) (*App, *httptest.Server) {
	t.Helper()
	cfg := Config{DBSchema: "public", ShutdownTimeout: time.Second}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, s, log)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return a, srv
}

func call(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func signupAndSignin(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	resp, body := call(t, srv, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = call(t, srv, http.MethodPost, "/auth/signin", "", map[string]string{
		"identifier": username, "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.AccessToken
}

func TestApp_ProbesAndMetrics(t *testing.T) {
	_, srv := newTestApp(t, testSettings(t))

	resp, body := call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = call(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "plaza_ws_connections")
	assert.Contains(t, string(body), "go_goroutines")
	assert.Contains(t, string(body), `plaza_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	s := testSettings(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), Config{DBSchema: "public", ReadinessRequireDB: true}, s, log)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, _ := call(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestApp_SpaceToPresence(t *testing.T) {
	a, srv := newTestApp(t, testSettings(t))

	signupAndSignin(t, srv, "root")
	_, err := a.Auth().GrantAdmin(context.Background(), "root")
	require.NoError(t, err)
	// Re-signin so the access token carries the new role.
	resp, body := call(t, srv, http.MethodPost, "/auth/signin", "", map[string]string{"identifier": "root", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var signin struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &signin))
	admin := signin.AccessToken

	resp, body = call(t, srv, http.MethodPost, "/maps", admin, map[string]any{"name": "lobby", "width": 3, "height": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var m struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &m))

	user := signupAndSignin(t, srv, "alice")
	resp, body = call(t, srv, http.MethodPost, "/maps", user, map[string]any{"name": "nope", "width": 3, "height": 3})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	resp, body = call(t, srv, http.MethodPost, "/spaces", user, map[string]string{"name": "hangout", "map_id": m.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var sp struct {
		ID     string `json:"id"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	require.NoError(t, json.Unmarshal(body, &sp))
	assert.Equal(t, 3, sp.Width)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + user
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, greeting, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(greeting), v1.Greeting+" "))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"JOIN","payload":{"space_id":"`+sp.ID+`"}}`)))
	_, frame, err := conn.Read(ctx)
	require.NoError(t, err)
	var env v1.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, v1.TypeJoined, env.Type)
	var joined v1.JoinedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	assert.Less(t, joined.Spawn.X, 3)
	assert.Less(t, joined.Spawn.Y, 3)
}

func TestApp_AuthRoutesAreRateLimited(t *testing.T) {
	s := testSettings(t)
	s.HTTP.AuthRatePerSecond = 0.001
	s.HTTP.AuthRateBurst = 2
	_, srv := newTestApp(t, s)

	creds := map[string]string{"identifier": "ghost", "password": testPassword}
	for range 2 {
		resp, _ := call(t, srv, http.MethodPost, "/auth/signin", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, _ := call(t, srv, http.MethodPost, "/auth/signin", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Other routes draw from the general bucket.
	resp, _ = call(t, srv, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApp_RejectsMissingHasher(t *testing.T) {
	s := testSettings(t)
	s.Hasher = nil
	_, err := New(context.Background(), Config{}, s, nil)
	assert.Error(t, err)
}
