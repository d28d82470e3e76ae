package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth"
	"plaza/cmd/internal/auth/session"
	"plaza/cmd/internal/blob"
	"plaza/cmd/security/credential"
	"plaza/cmd/security/password"
	"plaza/cmd/security/token"
)

const goodPassword = "Str0ng!pass"

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAuditor) Record(_ context.Context, ev AuditEvent) {
	a.mu.Lock()
	a.events = append(a.events, ev.Action)
	a.mu.Unlock()
}

func (a *recordingAuditor) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == action {
			return true
		}
	}
	return false
}

type testServer struct {
	h     http.Handler
	svc   *auth.Service
	audit *recordingAuditor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	pw := password.Config{Params: password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}
	hasher, err := credential.New(pw, token.NewHasher([]byte(strings.Repeat("k", token.MinKeyBytes))))
	require.NoError(t, err)

	scfg := session.DefaultConfig()
	scfg.AccessSecret = []byte(strings.Repeat("a", 32))
	scfg.RefreshSecret = []byte(strings.Repeat("r", 32))
	sessions, err := session.NewService(scfg, session.NewMemoryStore(), hasher)
	require.NoError(t, err)

	svc, err := auth.NewService(identity.NewMemoryStore(), sessions, hasher, blob.NewMemoryStore())
	require.NoError(t, err)

	rec := &recordingAuditor{}
	h, err := NewHandler(nil, DefaultConfig(), svc, WithAuditor(rec))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(WithRequestID)
	h.Register(r)
	return &testServer{h: r, svc: svc, audit: rec}
}

func (s *testServer) do(t *testing.T, method, path string, body any, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mods {
		m(req)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	return rr
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == RefreshCookieName {
			found = append(found, c)
		}
	}
	require.Len(t, found, 1, "exactly one refresh cookie")
	return found[0]
}

func (s *testServer) signin(t *testing.T, ident string) (signinResponse, *http.Cookie) {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": ident, "password": goodPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out signinResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out, refreshCookie(t, rr)
}

func (s *testServer) signup(t *testing.T, username string, mods ...func(*http.Request)) string {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"username": username, "email": username + "@example.com", "password": goodPassword,
	}, mods...)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out signupResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out.ID
}

func TestAuthFlow_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	// Self-assigned ADMIN is refused.
	rr := s.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"handle": "boss", "email": "boss@example.com", "password": goodPassword, "role": "ADMIN",
	})
	require.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())

	s.signup(t, "root")
	_, err := s.svc.GrantAdmin(context.Background(), "root")
	require.NoError(t, err)
	rootTok, _ := s.signin(t, "root")
	assert.Equal(t, identity.RoleAdmin, rootTok.User.Role)

	rr = s.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"handle": "boss", "email": "boss@example.com", "password": goodPassword, "role": "ADMIN",
	}, bearer(rootTok.AccessToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	out, c0 := s.signin(t, "boss")
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, int64(900), out.ExpiresIn)
	assert.Equal(t, identity.RoleAdmin, out.User.Role)
	assert.True(t, c0.HttpOnly)
	assert.True(t, c0.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c0.SameSite)
	assert.Equal(t, "/auth", c0.Path)
	assert.Equal(t, 7*24*3600, c0.MaxAge)

	rr = s.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(c0))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	c1 := refreshCookie(t, rr)
	assert.NotEqual(t, c0.Value, c1.Value)

	rr = s.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(c0))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "stale token")

	rr = s.do(t, http.MethodPost, "/auth/signout", nil, withCookie(c1))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, -1, refreshCookie(t, rr).MaxAge)

	rr = s.do(t, http.MethodPost, "/auth/signout", nil, withCookie(c1))
	assert.Equal(t, http.StatusNoContent, rr.Code, "signout is idempotent")

	rr = s.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(c1))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	assert.True(t, s.audit.has("auth.signin.ok"))
	assert.True(t, s.audit.has("auth.refresh.fail"))
	assert.True(t, s.audit.has("auth.signout"))
}

func TestSigninAndRefresh_ReportConfiguredLifetimes(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice")

	// Expiry claims are whole seconds; the reported lifetime must not drift
	// with the sub-second part of the issue time.
	for i := 0; i < 5; i++ {
		out, c := s.signin(t, "alice")
		assert.Equal(t, int64(900), out.ExpiresIn)
		assert.Equal(t, 7*24*3600, c.MaxAge)

		time.Sleep(150 * time.Millisecond)
		rr := s.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(c))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var ref refreshResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&ref))
		assert.Equal(t, int64(900), ref.ExpiresIn)
		assert.Equal(t, 7*24*3600, refreshCookie(t, rr).MaxAge)
	}
}

func TestSignup_ErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice")

	rr := s.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"username": "ALICE", "email": "other@example.com", "password": goodPassword,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "password",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details []auth.FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "validation_failed", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details)

	rr = s.do(t, http.MethodPost, "/auth/signup", map[string]any{"username": "bob", "extra": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields are rejected")
}

func TestSignin_UnauthorizedBodyIsUniform(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "carol")

	a := s.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": "nobody", "password": goodPassword})
	b := s.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": "carol", "password": "Wrong!pass1"})
	assert.Equal(t, http.StatusUnauthorized, a.Code)
	assert.Equal(t, http.StatusUnauthorized, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
	assert.Empty(t, a.Result().Cookies())
}

func TestRefresh_WithoutCookieIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/signout", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestUsersMe(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "dana")
	tok, _ := s.signin(t, "dana")

	rr := s.do(t, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodGet, "/users/me", nil, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var me userResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "dana", me.Username)

	rr = s.do(t, http.MethodPatch, "/users/me", map[string]string{"current_password": goodPassword, "new_email": "Dana2@Example.com"}, bearer(tok.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "dana2@example.com", me.Email)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, _ = fw.Write(buf.Bytes())
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/users/me/avatar", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	avatar := httptest.NewRecorder()
	s.h.ServeHTTP(avatar, req)
	require.Equal(t, http.StatusOK, avatar.Code, avatar.Body.String())

	rr = s.do(t, http.MethodDelete, "/users/me", map[string]string{"current_password": "Wrong!pass1"}, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = s.do(t, http.MethodDelete, "/users/me", map[string]string{"current_password": goodPassword}, bearer(tok.AccessToken))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	rootID := s.signup(t, "root")
	userID := s.signup(t, "plain")
	_, err := s.svc.GrantAdmin(context.Background(), "root")
	require.NoError(t, err)
	root, _ := s.signin(t, "root")
	plain, _ := s.signin(t, "plain")

	rr := s.do(t, http.MethodPut, "/admin/users/"+rootID+"/role", map[string]string{"role": "USER"}, bearer(plain.AccessToken))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPut, "/admin/users/01J00000000000000000000000/role", map[string]string{"role": "USER"}, bearer(root.AccessToken))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodPut, "/admin/users/"+userID+"/role", map[string]string{"role": "ADMIN"}, bearer(root.AccessToken))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/admin/users/delete", map[string]any{"current_password": goodPassword, "user_ids": []string{userID}}, bearer(root.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out deleteUsersResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Equal(t, []string{userID}, out.Deleted)
}
