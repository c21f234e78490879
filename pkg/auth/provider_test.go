package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlit/telemetry-go/pkg/config"
)

// tokenServer is a minimal OAuth2 client-credentials endpoint that counts
// requests and records the last form it received.
type tokenServer struct {
	*httptest.Server

	requests  atomic.Int64
	lastForm  map[string]string
	expiresIn int
	status    int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{expiresIn: 3600, status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)

		require.NoError(t, r.ParseForm())
		ts.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}

		if ts.status != http.StatusOK {
			http.Error(w, "nope", ts.status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "issued-token",
			"token_type":   "bearer",
			"expires_in":   ts.expiresIn,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testSettings(baseURL, credentials string) *config.Settings {
	s := config.NewDefaultSettings()
	s.Workspace = "test-workspace"
	s.BaseURL = baseURL
	s.Authentication.Client.Credentials = config.Secret(credentials)
	return s
}

func encodeCreds(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}

func TestProviderPlaceholderToken(t *testing.T) {
	tests := []struct {
		name        string
		credentials string
		wantState   CredentialState
	}{
		{"missing credentials", "", CredentialsMissing},
		{"malformed credentials", "not base64 at all!", CredentialsInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(testSettings("https://api.example.com/v0", tt.credentials))
			require.Equal(t, tt.wantState, p.State())

			before := time.Now()
			tok, err := p.Token(context.Background())
			after := time.Now()

			require.NoError(t, err)
			assert.Empty(t, tok.AccessToken)
			assert.False(t, tok.ExpiresAt.Before(before.Add(placeholderTokenTTL)))
			assert.False(t, tok.ExpiresAt.After(after.Add(placeholderTokenTTL)))
		})
	}
}

func TestProviderTokenExchange(t *testing.T) {
	srv := newTokenServer(t)

	p := NewProvider(testSettings(srv.URL, encodeCreds("my-client", "my-secret")),
		WithHTTPClient(srv.Client()))
	require.Equal(t, CredentialsValid, p.State())

	tok, err := p.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "issued-token", tok.AccessToken)
	assert.True(t, tok.Valid(time.Now()))
	assert.EqualValues(t, 1, srv.requests.Load())
	assert.Equal(t, "client_credentials", srv.lastForm["grant_type"])
	assert.Equal(t, "my-client", srv.lastForm["client_id"])
	assert.Equal(t, "my-secret", srv.lastForm["client_secret"])
}

func TestProviderTokenFetchesEveryCall(t *testing.T) {
	srv := newTokenServer(t)

	p := NewProvider(testSettings(srv.URL, encodeCreds("id", "secret")),
		WithHTTPClient(srv.Client()))

	for i := 0; i < 3; i++ {
		_, err := p.Token(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, srv.requests.Load())
}

func TestProviderTokenEndpointFailure(t *testing.T) {
	srv := newTokenServer(t)
	srv.status = http.StatusInternalServerError

	p := NewProvider(testSettings(srv.URL, encodeCreds("id", "secret")),
		WithHTTPClient(srv.Client()))

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token exchange with "+srv.URL+"/oauth/token failed")
}

func TestProviderRenewCachesUntilExpiry(t *testing.T) {
	srv := newTokenServer(t)
	srv.expiresIn = 3600

	now := time.Now()
	clock := &now

	p := NewProvider(testSettings(srv.URL, encodeCreds("id", "secret")),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return *clock }))

	first, err := p.Renew(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.requests.Load())

	// Still valid: the cached token is reused, no second request.
	cached, err := p.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.EqualValues(t, 1, srv.requests.Load())

	// Advance past expiry: the next call renews.
	*clock = now.Add(2 * time.Hour)
	_, err = p.Renew(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.requests.Load())
}

func TestProviderRenewKeepsCacheOnFailure(t *testing.T) {
	srv := newTokenServer(t)

	now := time.Now()
	clock := &now

	p := NewProvider(testSettings(srv.URL, encodeCreds("id", "secret")),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return *clock }))

	_, err := p.Renew(context.Background())
	require.NoError(t, err)

	// Expire the token, then make the endpoint fail. The error propagates and
	// no partially written token replaces the cache.
	*clock = now.Add(2 * time.Hour)
	srv.status = http.StatusBadGateway

	_, err = p.Renew(context.Background())
	require.Error(t, err)

	srv.status = http.StatusOK
	tok, err := p.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "issued-token", tok.AccessToken)
}

func TestProviderHeaders(t *testing.T) {
	srv := newTokenServer(t)

	p := NewProvider(testSettings(srv.URL, encodeCreds("id", "secret")),
		WithHTTPClient(srv.Client()))

	headers, err := p.Headers(context.Background())
	require.NoError(t, err)

	require.Len(t, headers, 2)
	assert.Equal(t, "Bearer issued-token", headers["authorization"])
	assert.Equal(t, "test-workspace", headers[WorkspaceHeader])
}

func TestProviderHeadersPlaceholder(t *testing.T) {
	p := NewProvider(testSettings("https://api.example.com/v0", ""))

	headers, err := p.Headers(context.Background())
	require.NoError(t, err)

	require.Len(t, headers, 2)
	assert.Equal(t, "Bearer ", headers["authorization"])
	assert.Equal(t, "test-workspace", headers[WorkspaceHeader])
}

func TestTokenValid(t *testing.T) {
	now := time.Now()

	assert.True(t, Token{}.Valid(now), "zero expiry never expires")
	assert.True(t, Token{ExpiresAt: now.Add(time.Minute)}.Valid(now))
	assert.False(t, Token{ExpiresAt: now}.Valid(now), "expiry is exclusive")
	assert.False(t, Token{ExpiresAt: now.Add(-time.Minute)}.Valid(now))
}
