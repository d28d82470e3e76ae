package world

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth/session"
	"plaza/cmd/internal/blob"
)

// staticVerifier accepts tokens of the form "<role>:<user id>".
type staticVerifier struct{}

func (staticVerifier) VerifyAccess(tok string, _ time.Time) (session.AccessClaims, error) {
	role, id, ok := strings.Cut(tok, ":")
	if !ok {
		return session.AccessClaims{}, errors.New("bad token")
	}
	return session.AccessClaims{Role: identity.Role(role), RegisteredClaims: jwt.RegisteredClaims{Subject: id}}, nil
}

func newWorldServer(t *testing.T) (http.Handler, *blob.MemoryStore) {
	t.Helper()
	blobs := blob.NewMemoryStore()
	svc, err := NewService(NewMemoryStore(), blobs)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(nil, svc, staticVerifier{}, 0).Register(r)
	return r, blobs
}

func call(t *testing.T, h http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWorldRoutes(t *testing.T) {
	h, blobs := newWorldServer(t)
	admin, user := "ADMIN:01J0ADMIN00000000000000000", "USER:01J0USER000000000000000000"

	rr := call(t, h, http.MethodPost, "/maps", "", map[string]any{"name": "Lobby", "width": 10, "height": 10})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(t, h, http.MethodPost, "/maps", user, map[string]any{"name": "Lobby", "width": 10, "height": 10})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(t, h, http.MethodPost, "/maps", admin, map[string]any{"name": "Lobby", "width": 0, "height": 2000})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h, http.MethodPost, "/maps", admin, map[string]any{"name": "Lobby", "width": 10, "height": 10, "thumbnail_key": "maps/t.png"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "thumbnail must exist")

	require.NoError(t, blobs.Put(context.Background(), "maps/t.png", "image/png", strings.NewReader("x"), 1))
	rr = call(t, h, http.MethodPost, "/maps", admin, map[string]any{"name": "Lobby", "width": 10, "height": 8, "thumbnail_key": "maps/t.png"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var m Map
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))

	rr = call(t, h, http.MethodPost, "/spaces", user, map[string]any{"name": "Room", "map_id": "01J00000000000000000000000"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown map")

	rr = call(t, h, http.MethodPost, "/spaces", user, map[string]any{"name": "Room", "map_id": m.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var sp Space
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&sp))
	assert.Equal(t, 10, sp.Width)
	assert.Equal(t, 8, sp.Height)

	rr = call(t, h, http.MethodGet, "/spaces/"+sp.ID, user, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodGet, "/spaces/01J00000000000000000000000", user, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
