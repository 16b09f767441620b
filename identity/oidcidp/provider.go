// Package oidcidp adapts a remote OpenID Connect provider to the
// identity.Provider contract. Sign-in uses the resource owner password grant,
// sign-out revokes tokens at the provider's revocation endpoint, and the
// token set is persisted so a session survives restarts.
package oidcidp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/qsmate/identity"
	qserrors "github.com/jrsteele09/qsmate/internal/errors"
	"github.com/jrsteele09/qsmate/internal/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	_ identity.Provider = (*Provider)(nil)
	_ identity.Runner   = (*Provider)(nil)
)

// ErrSignUpUnsupported is returned by SignUp when no registration endpoint
// is configured.
var ErrSignUpUnsupported = identity.ErrSignUpUnsupported

// Config describes the OIDC client registration.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	SignupURL    string
}

// Provider implements identity.Provider against an OIDC issuer.
type Provider struct {
	*identity.Feed

	oauth2Config    *oauth2.Config
	verifier        *oidc.IDTokenVerifier
	restoreVerifier *oidc.IDTokenVerifier
	revocationURL   string
	signupURL       string
	httpClient      *http.Client
	tokens          tokenstore.Store

	lock    sync.Mutex
	current *storedToken
}

// storedToken is the persisted form of a session. oauth2.Token does not
// serialise its extra fields, so the raw ID token is kept alongside it.
type storedToken struct {
	Token   *oauth2.Token `json:"token"`
	IDToken string        `json:"id_token"`
}

type ProviderOption func(*Provider)

// WithHTTPClient sets the client used for discovery, token and revocation
// requests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// New runs OIDC discovery against cfg.Issuer. Any failure here is a
// configuration error: the session gate cannot start without a provider.
func New(ctx context.Context, cfg Config, tokens tokenstore.Store, options ...ProviderOption) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, identity.ConfigurationError(errors.New("[oidcidp New] issuer and client id are required"))
	}
	if tokens == nil {
		return nil, identity.ConfigurationError(errors.New("[oidcidp New] token store is required"))
	}

	p := &Provider{
		signupURL:  cfg.SignupURL,
		tokens:     tokens,
		httpClient: http.DefaultClient,
	}
	for _, opt := range options {
		opt(p)
	}

	oidcProvider, err := oidc.NewProvider(p.clientContext(ctx), cfg.Issuer)
	if err != nil {
		return nil, identity.ConfigurationError(fmt.Errorf("[oidcidp New] discovery: %w", err))
	}

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil {
		return nil, identity.ConfigurationError(fmt.Errorf("[oidcidp New] discovery claims: %w", err))
	}
	p.revocationURL = discovery.RevocationEndpoint

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess}
	}

	p.oauth2Config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       scopes,
	}
	p.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	// A restored ID token may have expired even though its refresh token is
	// still good; the refresh itself proves the session is live.
	p.restoreVerifier = oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID, SkipExpiryCheck: true})

	p.Feed = identity.NewFeed()
	return p, nil
}

// Start restores a persisted session and resolves the feed.
func (p *Provider) Start(ctx context.Context) error {
	ctx = p.clientContext(ctx)

	raw, err := p.tokens.Load()
	if err != nil {
		if !qserrors.Is(err, qserrors.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to load persisted session")
		}
		p.Publish(nil)
		return nil
	}

	var stored storedToken
	if err := json.Unmarshal(raw, &stored); err != nil || stored.Token == nil {
		log.Info().Err(err).Msg("Discarding unreadable persisted session")
		p.forget()
		p.Publish(nil)
		return nil
	}

	id, err := p.restore(ctx, &stored)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) || qserrors.Is(err, qserrors.ErrInvalidToken) {
			log.Info().Err(err).Msg("Persisted session rejected by identity provider")
			p.forget()
			p.Publish(nil)
			return nil
		}
		// The provider could not be reached. The stored session is kept for the
		// next start, and the failure follows the nil notification so it is
		// still the latest thing subscribers saw.
		p.Publish(nil)
		p.Fail(err)
		return nil
	}

	log.Info().Str("user_id", id.ID).Str("email", id.Email).Msg("Restored persisted session")
	p.Publish(id)
	return nil
}

// Stop closes the change feed.
func (p *Provider) Stop() {
	p.Close()
}

// SignIn exchanges the credential for tokens and verifies the ID token.
func (p *Provider) SignIn(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	ctx = p.clientContext(ctx)

	token, err := p.oauth2Config.PasswordCredentialsToken(ctx, credential.NormalisedEmail(), credential.Password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("[oidcidp SignIn] %w: %s", identity.ErrInvalidCredentials, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("[oidcidp SignIn] token request: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("[oidcidp SignIn] %w: no id_token in response", qserrors.ErrInvalidToken)
	}
	id, err := p.verify(ctx, p.verifier, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[oidcidp SignIn] %w", err)
	}

	stored := &storedToken{Token: token, IDToken: rawIDToken}
	if err := p.persist(stored); err != nil {
		return nil, fmt.Errorf("[oidcidp SignIn] persist session: %w", err)
	}

	p.Publish(id)
	return id.Clone(), nil
}

// SignUp registers the credential at the configured endpoint and then signs
// in with it.
func (p *Provider) SignUp(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	if p.signupURL == "" {
		return nil, fmt.Errorf("[oidcidp SignUp] %w", ErrSignUpUnsupported)
	}
	if err := p.register(ctx, credential); err != nil {
		return nil, fmt.Errorf("[oidcidp SignUp] %w", err)
	}
	return p.SignIn(ctx, credential)
}

// SignOut revokes the refresh and access tokens. If either revocation fails
// the session is kept and the error is returned.
func (p *Provider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	current := p.current
	p.lock.Unlock()

	if current != nil && current.Token != nil && p.revocationURL != "" {
		if current.Token.RefreshToken != "" {
			if err := p.revoke(ctx, current.Token.RefreshToken, "refresh_token"); err != nil {
				return fmt.Errorf("[oidcidp SignOut] %w", err)
			}
		}
		if current.Token.AccessToken != "" {
			if err := p.revoke(ctx, current.Token.AccessToken, "access_token"); err != nil {
				return fmt.Errorf("[oidcidp SignOut] %w", err)
			}
		}
	}

	if err := p.tokens.Clear(); err != nil {
		return fmt.Errorf("[oidcidp SignOut] %w", err)
	}
	p.lock.Lock()
	p.current = nil
	p.lock.Unlock()

	p.Publish(nil)
	return nil
}

func (p *Provider) restore(ctx context.Context, stored *storedToken) (*identity.Identity, error) {
	if stored.Token.RefreshToken == "" {
		if !stored.Token.Valid() {
			return nil, fmt.Errorf("%w: persisted access token expired", qserrors.ErrInvalidToken)
		}
		id, err := p.verify(ctx, p.verifier, stored.IDToken)
		if err != nil {
			return nil, err
		}
		p.lock.Lock()
		p.current = stored
		p.lock.Unlock()
		return id, nil
	}

	// Force a refresh so the provider confirms the session is still live.
	expired := *stored.Token
	expired.AccessToken = ""
	fresh, err := p.oauth2Config.TokenSource(ctx, &expired).Token()
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := fresh.Extra("id_token").(string)
	verifier := p.verifier
	if !ok || rawIDToken == "" {
		rawIDToken = stored.IDToken
		verifier = p.restoreVerifier
	}
	id, err := p.verify(ctx, verifier, rawIDToken)
	if err != nil {
		return nil, err
	}

	if err := p.persist(&storedToken{Token: fresh, IDToken: rawIDToken}); err != nil {
		log.Warn().Err(err).Msg("Failed to persist refreshed session")
	}
	return id, nil
}

func (p *Provider) verify(ctx context.Context, verifier *oidc.IDTokenVerifier, rawIDToken string) (*identity.Identity, error) {
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", qserrors.ErrInvalidToken, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %w", qserrors.ErrInvalidToken, err)
	}

	return &identity.Identity{
		ID:            idToken.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (p *Provider) persist(stored *storedToken) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := p.tokens.Save(data); err != nil {
		return err
	}
	p.lock.Lock()
	p.current = stored
	p.lock.Unlock()
	return nil
}

func (p *Provider) forget() {
	if err := p.tokens.Clear(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear persisted session")
	}
	p.lock.Lock()
	p.current = nil
	p.lock.Unlock()
}

// clientContext routes both discovery and oauth2 token traffic through the
// configured client.
func (p *Provider) clientContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return oidc.ClientContext(ctx, p.httpClient)
}
