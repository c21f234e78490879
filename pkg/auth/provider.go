// Package auth produces bearer credentials for telemetry export.
//
// A Provider holds one cached token per process and renews it lazily when a
// caller asks for headers after expiry. Missing or malformed workspace
// credentials degrade to an unauthenticated placeholder token rather than
// failing the host application.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/beamlit/telemetry-go/pkg/config"
)

// placeholderTokenTTL bounds how long an empty placeholder token is cached
// before the credentials are re-examined.
const placeholderTokenTTL = 2 * time.Hour

// WorkspaceHeader carries the tenant identifier on every export request.
const WorkspaceHeader = "x-beamlit-workspace"

// Token is a bearer token with an absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at the given instant.
// Expiry is exclusive: a token expiring exactly now is renewed. A zero
// ExpiresAt means the issuer did not bound the token's lifetime.
func (t Token) Valid(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return t.ExpiresAt.After(now)
}

// Provider produces valid bearer tokens on demand, renewing lazily.
//
// Credentials are parsed once at construction. Settings are immutable after
// load, so the OAuth session handle cannot silently go stale; a host that
// reloads settings constructs a new Provider.
type Provider struct {
	settings *config.Settings
	creds    Credentials
	state    CredentialState

	mu      sync.Mutex
	session *clientcredentials.Config
	current *Token

	now        func() time.Time
	httpClient *http.Client
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets the HTTP client used for token fetches (for testing).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a credential provider for the given settings.
func NewProvider(settings *config.Settings, opts ...ProviderOption) *Provider {
	creds, state := ParseCredentials(settings.Authentication.Client.Credentials)
	p := &Provider{
		settings: settings,
		creds:    creds,
		state:    state,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the credential classification made at construction.
func (p *Provider) State() CredentialState {
	return p.state
}

// Token performs a fresh token exchange.
//
// With missing or invalid credentials it returns an empty placeholder token
// expiring in two hours and never fails. With valid credentials it issues
// exactly one request to {base_url}/oauth/token per call; endpoint failures
// propagate to the caller unretried.
func (p *Provider) Token(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch(ctx)
}

// Renew returns the cached token when it is still valid, otherwise fetches a
// new one and replaces the cache. The token is only ever replaced whole.
func (p *Provider) Renew(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.Valid(p.now()) {
		return *p.current, nil
	}

	tok, err := p.fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	p.current = &tok
	return tok, nil
}

// Headers returns the authorization headers for telemetry export, renewing
// the cached token first when needed. With a placeholder token the bearer
// value is empty; the collector rejects such exports, the application keeps
// running.
func (p *Provider) Headers(ctx context.Context) (map[string]string, error) {
	tok, err := p.Renew(ctx)
	if err != nil {
		return nil, fmt.Errorf("renewing telemetry token: %w", err)
	}
	return map[string]string{
		"authorization": "Bearer " + tok.AccessToken,
		WorkspaceHeader: p.settings.Workspace,
	}, nil
}

// fetch performs one token exchange. Callers hold p.mu.
func (p *Provider) fetch(ctx context.Context) (Token, error) {
	if p.state != CredentialsValid {
		return Token{ExpiresAt: p.now().Add(placeholderTokenTTL)}, nil
	}

	// The session handle is built once per provider and bound to the
	// credentials parsed at construction.
	if p.session == nil {
		p.session = &clientcredentials.Config{
			ClientID:     p.creds.ClientID,
			ClientSecret: p.creds.ClientSecret,
			TokenURL:     p.settings.TokenURL(),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.session.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange with %s failed: %w", p.settings.TokenURL(), err)
	}

	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}
