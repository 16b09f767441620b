package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"

	"github.com/jrsteele09/qsmate/guard"
	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/identity/localidp"
	"github.com/jrsteele09/qsmate/identity/oidcidp"
	"github.com/jrsteele09/qsmate/internal/config"
	"github.com/jrsteele09/qsmate/internal/tokenstore"
	"github.com/jrsteele09/qsmate/session"
	"github.com/rs/zerolog/log"
)

const sessionTokenFile = "session.token"

// Gate bundles the session gate: the identity provider, the session store
// subscribed to it and the route guard fed by the store.
type Gate struct {
	Provider identity.Provider
	Sessions *session.Store
	Guard    *guard.Guard
}

// NewGate subscribes a session store to provider and builds the guard. The
// provider is not started until Run.
func NewGate(provider identity.Provider, classifier *guard.Classifier, options ...guard.Option) (*Gate, error) {
	sessions, err := session.Initialize(provider)
	if err != nil {
		return nil, fmt.Errorf("[NewGate] %w", err)
	}
	return &Gate{
		Provider: provider,
		Sessions: sessions,
		Guard:    guard.New(classifier, options...),
	}, nil
}

// Run starts the provider, if it needs starting, and drives the guard until
// ctx ends.
func (g *Gate) Run(ctx context.Context) error {
	if runner, ok := g.Provider.(identity.Runner); ok {
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("[Gate Run] start identity provider: %w", err)
		}
	}
	return g.Guard.Run(ctx, g.Sessions)
}

// Close releases the store's subscription and then stops the provider. Call
// it after Run has returned.
func (g *Gate) Close() {
	g.Sessions.Close()
	if runner, ok := g.Provider.(identity.Runner); ok {
		runner.Stop()
	}
}

// InitialiseGate builds the configured identity provider and the gate around
// it. Any error here is a configuration error and is fatal at startup.
func InitialiseGate(ctx context.Context, cfg config.Config) (*Gate, error) {
	configured, err := cfg.GetRoleAllowList()
	if err != nil {
		return nil, err
	}
	allowList := maps.Clone(configured)
	if allowList == nil {
		allowList = make(map[string]string)
	}

	provider, err := initialiseProvider(ctx, cfg, allowList)
	if err != nil {
		return nil, err
	}

	classifier, err := guard.NewClassifier(allowList, cfg.GetDefaultRole())
	if err != nil {
		stopProvider(provider)
		return nil, err
	}

	gate, err := NewGate(provider, classifier)
	if err != nil {
		stopProvider(provider)
		return nil, err
	}
	return gate, nil
}

func initialiseProvider(ctx context.Context, cfg config.Config, allowList map[string]string) (identity.Provider, error) {
	tokens := tokenstore.NewFileStore(filepath.Join(cfg.GetDataFolder(), sessionTokenFile))

	switch cfg.GetIdentityProvider() {
	case config.ProviderLocal:
		provider, err := localidp.New(tokens,
			localidp.WithTokenSecret(cfg.GetTokenSecret()),
			localidp.WithTokenExpiry(cfg.GetSessionTokenExpiry()),
		)
		if err != nil {
			return nil, err
		}
		if err := seedBootstrapAdmin(provider, cfg, allowList); err != nil {
			provider.Stop()
			return nil, err
		}
		log.Info().Str("provider", config.ProviderLocal).Msg("Identity provider initialised")
		return provider, nil

	case config.ProviderOIDC:
		provider, err := oidcidp.New(ctx, oidcidp.Config{
			Issuer:       cfg.GetOIDCIssuer(),
			ClientID:     cfg.GetOIDCClientID(),
			ClientSecret: cfg.GetOIDCClientSecret(),
			Scopes:       cfg.GetOIDCScopes(),
			SignupURL:    cfg.GetOIDCSignupURL(),
		}, tokens)
		if err != nil {
			return nil, err
		}
		log.Info().Str("provider", config.ProviderOIDC).Str("issuer", cfg.GetOIDCIssuer()).Msg("Identity provider initialised")
		return provider, nil

	default:
		return nil, identity.ConfigurationError(fmt.Errorf("unknown IDENTITY_PROVIDER %q", cfg.GetIdentityProvider()))
	}
}

// seedBootstrapAdmin creates the configured admin account and routes its
// email to the admin group unless the allow-list already names it.
func seedBootstrapAdmin(provider *localidp.Provider, cfg config.Config, allowList map[string]string) error {
	email := cfg.GetBootstrapAdminEmail()
	if email == "" {
		return nil
	}
	password := cfg.GetBootstrapAdminPassword()
	if password == "" {
		return identity.ConfigurationError(errors.New("BOOTSTRAP_ADMIN_PASSWORD is required with BOOTSTRAP_ADMIN_EMAIL"))
	}

	credential := identity.Credential{Email: email, Password: password}
	admin, err := provider.Seed(credential, "Administrator")
	if err != nil {
		return identity.ConfigurationError(err)
	}

	if !allowListHas(allowList, credential.NormalisedEmail()) {
		allowList[credential.NormalisedEmail()] = string(guard.RoleAdmin)
	}
	log.Info().Str("user_id", admin.ID).Str("email", admin.Email).Msg("Bootstrap admin account ready")
	return nil
}

func allowListHas(allowList map[string]string, normalisedEmail string) bool {
	for email := range allowList {
		if (identity.Credential{Email: email}).NormalisedEmail() == normalisedEmail {
			return true
		}
	}
	return false
}

func stopProvider(provider identity.Provider) {
	if runner, ok := provider.(identity.Runner); ok {
		runner.Stop()
	}
}
