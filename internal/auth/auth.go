// Package auth signs the operator in to Microsoft Graph with the OAuth2
// device-code flow and keeps the resulting tokens in a private cache file.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/steveyegge/planner/internal/config"
	"github.com/steveyegge/planner/internal/debug"
	"github.com/steveyegge/planner/internal/lockfile"
)

// CodeAuthError is the machine-readable code of AuthError.
const CodeAuthError = "AuthError"

// Scopes requested at sign-in.
var Scopes = []string{
	"Tasks.ReadWrite",
	"Group.Read.All",
	"Group.ReadWrite.All",
	"offline_access",
}

// AuthError reports a sign-in problem.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrorCode returns the machine-readable code.
func (e *AuthError) ErrorCode() string { return e.Code }

func authError(err error, format string, args ...any) *AuthError {
	return &AuthError{Code: CodeAuthError, Message: fmt.Sprintf(format, args...), Err: err}
}

var errNotSignedIn = &AuthError{
	Code:    CodeAuthError,
	Message: "Not signed in",
	Hint:    "Run 'planner login'",
}

// Authenticator holds the OAuth2 client configuration and the cache path.
type Authenticator struct {
	OAuth     *oauth2.Config
	CachePath string
}

// New builds an Authenticator for the configured tenant and client.
func New(cfg *config.Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint := microsoft.AzureADEndpoint(cfg.TenantID)
	endpoint.DeviceAuthURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/devicecode", cfg.TenantID)
	// Public clients authenticate with client_id in the form body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	cache := cfg.TokenCache
	if cache == "" {
		cache = config.DefaultTokenCache()
	}
	return &Authenticator{
		OAuth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoint,
			Scopes:   Scopes,
		},
		CachePath: cache,
	}, nil
}

// Login runs the device-code flow, printing the verification URL and code
// to out, and caches the token once the operator approves.
func (a *Authenticator) Login(ctx context.Context, out io.Writer) (*oauth2.Token, error) {
	da, err := a.OAuth.DeviceAuth(ctx)
	if err != nil {
		return nil, authError(err, "failed to start device sign-in")
	}
	_, _ = fmt.Fprintf(out, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)

	tok, err := a.OAuth.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, authError(err, "device sign-in did not complete")
	}
	if err := SaveToken(a.CachePath, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Logout removes the token cache. Being signed out already is fine.
func (a *Authenticator) Logout() error {
	if err := os.Remove(a.CachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token cache: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes the cached token as needed
// and writes refreshed tokens back to the cache.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := LoadToken(a.CachePath)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, errNotSignedIn
	}
	base := a.OAuth.TokenSource(ctx, tok)
	return &persistingSource{base: base, path: a.CachePath, last: tok.AccessToken}, nil
}

// TokenSource picks the credentials for a run: PLANNER_ACCESS_TOKEN when
// set, otherwise the cached sign-in for cfg.
func TokenSource(ctx context.Context, cfg *config.Config) (oauth2.TokenSource, error) {
	if tok := os.Getenv("PLANNER_ACCESS_TOKEN"); tok != "" {
		debug.Logf("auth: using PLANNER_ACCESS_TOKEN\n")
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}), nil
	}
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return a.TokenSource(ctx)
}

// persistingSource saves every new access token it hands out.
type persistingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, authError(err, "failed to refresh sign-in")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			debug.Logf("auth: failed to cache refreshed token: %v\n", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// LoadToken reads the cache. A missing cache yields nil, nil.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is the configured token cache
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, authError(err, "failed to read token cache")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, authError(err, "token cache %s is corrupt", path)
	}
	return &tok, nil
}

// SaveToken writes tok to the cache, readable only by the user.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return lockfile.With(path, func() error {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("failed to write token cache: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to write token cache: %w", err)
		}
		return nil
	})
}
