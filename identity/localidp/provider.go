// Package localidp is an in-process identity provider. Accounts are held in
// memory with bcrypt password hashes; a signed-in session is persisted as a
// signed token so it survives restarts.
package localidp

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/qsmate/identity"
	qserrors "github.com/jrsteele09/qsmate/internal/errors"
	"github.com/jrsteele09/qsmate/internal/tokenstore"
	"github.com/rs/zerolog/log"
)

const defaultTokenExpiry = 30 * 24 * time.Hour

var _ identity.Provider = (*Provider)(nil)
var _ identity.Runner = (*Provider)(nil)

// Provider implements identity.Provider against local accounts.
type Provider struct {
	*identity.Feed

	lock     sync.RWMutex
	accounts map[string]*account // normalised email -> account
	tokens   tokenstore.Store
	signer   *tokenSigner
	nowTime  func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithTokenSecret sets the HS256 key for session tokens.
func WithTokenSecret(secret string) ProviderOption {
	return func(p *Provider) {
		if secret != "" {
			p.signer.secret = []byte(secret)
		}
	}
}

// WithTokenExpiry sets the session token lifetime.
func WithTokenExpiry(expiry time.Duration) ProviderOption {
	return func(p *Provider) {
		if expiry > 0 {
			p.signer.expiry = expiry
		}
	}
}

// New creates a provider persisting sessions in tokens. Without
// WithTokenSecret a random key is generated, so persisted sessions only
// restore within the same process.
func New(tokens tokenstore.Store, options ...ProviderOption) (*Provider, error) {
	if tokens == nil {
		return nil, identity.ConfigurationError(fmt.Errorf("[localidp New] token store is required"))
	}

	p := &Provider{
		accounts: make(map[string]*account),
		tokens:   tokens,
		signer:   &tokenSigner{expiry: defaultTokenExpiry},
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.signer.nowTime = func() time.Time { return p.nowTime() }

	if len(p.signer.secret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, identity.ConfigurationError(fmt.Errorf("[localidp New] generate token secret: %w", err))
		}
		p.signer.secret = secret
	}

	p.Feed = identity.NewFeed()
	return p, nil
}

// Start restores a persisted session and resolves the feed with it, or with
// no identity when there is nothing valid to restore.
func (p *Provider) Start(ctx context.Context) error {
	raw, err := p.tokens.Load()
	if err != nil {
		if !qserrors.Is(err, qserrors.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to load persisted session")
		}
		p.Publish(nil)
		return nil
	}

	restored, err := p.signer.Verify(string(raw))
	if err != nil {
		log.Info().Err(err).Msg("Discarding persisted session")
		if clearErr := p.tokens.Clear(); clearErr != nil {
			log.Warn().Err(clearErr).Msg("Failed to clear persisted session")
		}
		p.Publish(nil)
		return nil
	}

	log.Info().Str("user_id", restored.ID).Str("email", restored.Email).Msg("Restored persisted session")
	p.Publish(restored)
	return nil
}

// Stop closes the change feed.
func (p *Provider) Stop() {
	p.Close()
}

// Seed registers an account unless one already exists for the email. It is
// used to bootstrap the first admin.
func (p *Provider) Seed(credential identity.Credential, displayName string) (*identity.Identity, error) {
	p.lock.RLock()
	existing, ok := p.accounts[credential.NormalisedEmail()]
	p.lock.RUnlock()
	if ok {
		return existing.identity(), nil
	}

	acct, err := p.register(credential, displayName)
	if err != nil {
		return nil, fmt.Errorf("[localidp Seed] %w", err)
	}
	return acct.identity(), nil
}

// SignUp registers a new account and signs it in.
func (p *Provider) SignUp(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	if _, err := p.register(credential, ""); err != nil {
		return nil, fmt.Errorf("[localidp SignUp] %w", err)
	}
	return p.SignIn(ctx, credential)
}

// SignIn checks the credential, persists a session token and notifies
// subscribers.
func (p *Provider) SignIn(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	p.lock.RLock()
	acct, ok := p.accounts[credential.NormalisedEmail()]
	p.lock.RUnlock()

	if !ok || !CheckPasswordHash(credential.Password, acct.PasswordHash) {
		return nil, fmt.Errorf("[localidp SignIn] %w", identity.ErrInvalidCredentials)
	}

	p.lock.Lock()
	acct.LastLogin = p.nowTime()
	id := acct.identity()
	p.lock.Unlock()

	token, err := p.signer.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("[localidp SignIn] %w", err)
	}
	if err := p.tokens.Save([]byte(token)); err != nil {
		return nil, fmt.Errorf("[localidp SignIn] persist session: %w", err)
	}

	p.Publish(id)
	return id.Clone(), nil
}

// SignOut forgets the persisted session and notifies subscribers. If the
// session cannot be cleared the identity stays signed in.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.tokens.Clear(); err != nil {
		return fmt.Errorf("[localidp SignOut] %w", err)
	}
	p.Publish(nil)
	return nil
}

func (p *Provider) register(credential identity.Credential, displayName string) (*account, error) {
	email := strings.TrimSpace(credential.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(credential.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(credential.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	key := credential.NormalisedEmail()
	if _, exists := p.accounts[key]; exists {
		return nil, identity.ErrEmailInUse
	}
	acct := &account{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		PasswordHash: hash,
		DateJoined:   p.nowTime(),
	}
	p.accounts[key] = acct
	return acct, nil
}
