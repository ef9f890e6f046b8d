package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/steveyegge/planner/internal/config"
)

func testAuthenticator(t *testing.T, srv *httptest.Server) *Authenticator {
	t.Helper()
	a, err := New(&config.Config{
		TenantID:   "contoso",
		ClientID:   "app-1",
		TokenCache: filepath.Join(t.TempDir(), "cache", "token.json"),
	})
	require.NoError(t, err)
	if srv != nil {
		a.OAuth.Endpoint.TokenURL = srv.URL + "/token"
		a.OAuth.Endpoint.DeviceAuthURL = srv.URL + "/devicecode"
	}
	return a
}

func TestNewRequiresTenantAndClient(t *testing.T) {
	_, err := New(&config.Config{TenantID: "contoso"})

	var cerr *config.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestNewUsesTenantEndpoints(t *testing.T) {
	a := testAuthenticator(t, nil)

	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", a.OAuth.Endpoint.TokenURL)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/devicecode", a.OAuth.Endpoint.DeviceAuthURL)
	assert.Equal(t, Scopes, a.OAuth.Scopes)
	assert.Contains(t, a.OAuth.Scopes, "offline_access")
}

func TestTokenSourceNotSignedIn(t *testing.T) {
	a := testAuthenticator(t, nil)

	_, err := a.TokenSource(context.Background())

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, CodeAuthError, aerr.ErrorCode())
	assert.NotEmpty(t, aerr.Hint)
}

func TestTokenCacheRoundTripIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}

	require.NoError(t, SaveToken(path, tok))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

func TestLoadTokenMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	tok, err := LoadToken(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, tok)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadToken(bad)
	var aerr *AuthError
	assert.ErrorAs(t, err, &aerr)
}

func TestRefreshedTokenIsCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "app-1", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-2", "refresh_token": "rt-2", "token_type": "Bearer", "expires_in": 3600,
		})
	}))
	defer srv.Close()

	a := testAuthenticator(t, srv)
	require.NoError(t, SaveToken(a.CachePath, &oauth2.Token{
		AccessToken: "at-1", RefreshToken: "rt-1", TokenType: "Bearer", Expiry: time.Now().Add(-time.Minute),
	}))

	ts, err := a.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken)

	cached, err := LoadToken(a.CachePath)
	require.NoError(t, err)
	assert.Equal(t, "at-2", cached.AccessToken)
	assert.Equal(t, "rt-2", cached.RefreshToken)
}

func TestLoginDeviceFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/devicecode":
			assert.Contains(t, r.PostForm.Get("scope"), "Tasks.ReadWrite")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"device_code":      "dc-1",
				"user_code":        "ABCD-EFGH",
				"verification_uri": "https://microsoft.com/devicelogin",
				"expires_in":       60,
				"interval":         1,
			})
		case "/token":
			assert.Equal(t, "dc-1", r.PostForm.Get("device_code"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "at-1", "refresh_token": "rt-1", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := testAuthenticator(t, srv)
	var out bytes.Buffer
	tok, err := a.Login(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Contains(t, out.String(), "https://microsoft.com/devicelogin")
	assert.Contains(t, out.String(), "ABCD-EFGH")

	cached, err := LoadToken(a.CachePath)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", cached.RefreshToken)

	require.NoError(t, a.Logout())
	require.NoError(t, a.Logout(), "already signed out")
	cached, err = LoadToken(a.CachePath)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestStaticTokenFromEnvironment(t *testing.T) {
	t.Setenv("PLANNER_ACCESS_TOKEN", "env-token")

	ts, err := TokenSource(context.Background(), &config.Config{})
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok.AccessToken)
}
