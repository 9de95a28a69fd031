package web

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koffiyao/cartes/internal/cards"
)

func TestAuthMissingToken(t *testing.T) {
	srv := newTestServer(t, "test-secret", newFakeQueries())

	resp, err := http.Get(srv.URL + "/api/cards")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthWrongSecret(t *testing.T) {
	srv := newTestServer(t, "test-secret", newFakeQueries())

	token := signToken(t, "other-secret", "eve", cards.RoleAdmin)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/cards", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := doRequest(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthValidToken(t *testing.T) {
	srv := newTestServer(t, "test-secret", newFakeQueries())

	token := signToken(t, "test-secret", "alice", cards.RoleViewer)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/cards", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := doRequest(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabledRunsAsAdmin(t *testing.T) {
	// No secret configured: requests pass without a token.
	srv := newTestServer(t, "", newFakeQueries())

	resp, err := http.Get(srv.URL + "/api/cards")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	srv := newTestServer(t, "test-secret", newFakeQueries())

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestParseTokenUnknownRoleDegradesToViewer(t *testing.T) {
	s := &Server{jwtSecret: "test-secret"}
	raw := signToken(t, "test-secret", "bob", cards.Role("superuser"))

	identity, err := s.parseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "bob", identity.Subject)
	assert.Equal(t, cards.RoleViewer, identity.Role)
}
