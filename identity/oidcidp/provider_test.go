package oidcidp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/identity/oidcidp"
	"github.com/jrsteele09/qsmate/internal/tokenstore"
	"github.com/jrsteele09/qsmate/session"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "surveyor@example.com"
	testPassword = "Password123"
)

type listener struct {
	mu   sync.Mutex
	ids  []*identity.Identity
	errs []error
}

func (l *listener) onChange(id *identity.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *listener) onError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *listener) last(t *testing.T, count int) *identity.Identity {
	t.Helper()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.ids) >= count
	}, 2*time.Second, 5*time.Millisecond)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids[len(l.ids)-1]
}

func (l *listener) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func newProvider(t *testing.T, issuer *fakeIssuer, tokens tokenstore.Store) *oidcidp.Provider {
	t.Helper()
	p, err := oidcidp.New(context.Background(), oidcidp.Config{
		Issuer:       issuer.URL(),
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		SignupURL:    issuer.URL() + "/signup",
	}, tokens)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestNew_Configuration(t *testing.T) {
	t.Run("missing issuer", func(t *testing.T) {
		_, err := oidcidp.New(context.Background(), oidcidp.Config{ClientID: testClientID}, tokenstore.NewMemoryStore())
		require.ErrorIs(t, err, identity.ErrConfiguration)
	})

	t.Run("discovery failure", func(t *testing.T) {
		unreachable := httptest.NewServer(http.NotFoundHandler())
		unreachable.Close()

		_, err := oidcidp.New(context.Background(), oidcidp.Config{
			Issuer:   unreachable.URL,
			ClientID: testClientID,
		}, tokenstore.NewMemoryStore())
		require.ErrorIs(t, err, identity.ErrConfiguration)
	})
}

func TestProvider_SignInSignOut(t *testing.T) {
	issuer := newFakeIssuer(t)
	subject := issuer.addAccount(testEmail, testPassword, "Sam Surveyor")
	tokens := tokenstore.NewMemoryStore()
	p := newProvider(t, issuer, tokens)

	l := &listener{}
	p.Subscribe(l.onChange, l.onError)
	require.NoError(t, p.Start(context.Background()))
	require.Nil(t, l.last(t, 1))

	id, err := p.SignIn(context.Background(), identity.Credential{Email: "  Surveyor@Example.com ", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, subject, id.ID)
	require.Equal(t, testEmail, id.Email)
	require.Equal(t, "Sam Surveyor", id.DisplayName)
	require.True(t, id.EmailVerified)

	notified := l.last(t, 2)
	require.NotNil(t, notified)
	require.Equal(t, subject, notified.ID)

	persisted, err := tokens.Load()
	require.NoError(t, err)
	require.NotEmpty(t, persisted)

	require.NoError(t, p.SignOut(context.Background()))
	require.Nil(t, l.last(t, 3))
	require.Len(t, issuer.revokedTokens(), 2, "refresh and access tokens are both revoked")

	_, err = tokens.Load()
	require.ErrorIs(t, err, identity.ErrNotFound)
	require.Empty(t, l.errors())
}

func TestProvider_SignInInvalidCredentials(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.addAccount(testEmail, testPassword, "")
	p := newProvider(t, issuer, tokenstore.NewMemoryStore())
	require.NoError(t, p.Start(context.Background()))

	_, err := p.SignIn(context.Background(), identity.Credential{Email: testEmail, Password: "wrong-password"})
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	current, resolved := p.Current()
	require.True(t, resolved)
	require.Nil(t, current)
}

func TestProvider_SignOutRevocationFailureKeepsSession(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.addAccount(testEmail, testPassword, "")
	tokens := tokenstore.NewMemoryStore()
	p := newProvider(t, issuer, tokens)
	require.NoError(t, p.Start(context.Background()))

	_, err := p.SignIn(context.Background(), identity.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	issuer.setRevokeStatus(http.StatusServiceUnavailable)
	err = p.SignOut(context.Background())
	require.Error(t, err)

	current, _ := p.Current()
	require.NotNil(t, current, "a failed revocation leaves the user signed in")
	_, err = tokens.Load()
	require.NoError(t, err)

	issuer.setRevokeStatus(http.StatusOK)
	require.NoError(t, p.SignOut(context.Background()))
	current, _ = p.Current()
	require.Nil(t, current)
}

func TestProvider_RestoresPersistedSession(t *testing.T) {
	issuer := newFakeIssuer(t)
	subject := issuer.addAccount(testEmail, testPassword, "")
	tokens := tokenstore.NewMemoryStore()

	first := newProvider(t, issuer, tokens)
	require.NoError(t, first.Start(context.Background()))
	_, err := first.SignIn(context.Background(), identity.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	first.Stop()

	t.Run("refresh accepted", func(t *testing.T) {
		second := newProvider(t, issuer, tokens)
		l := &listener{}
		second.Subscribe(l.onChange, l.onError)
		require.NoError(t, second.Start(context.Background()))

		restored := l.last(t, 1)
		require.NotNil(t, restored)
		require.Equal(t, subject, restored.ID)
		require.Empty(t, l.errors())
	})

	t.Run("refresh rejected", func(t *testing.T) {
		issuer.setRefreshStatus(http.StatusBadRequest)
		t.Cleanup(func() { issuer.setRefreshStatus(http.StatusOK) })

		third := newProvider(t, issuer, tokens)
		l := &listener{}
		third.Subscribe(l.onChange, l.onError)
		require.NoError(t, third.Start(context.Background()))

		require.Nil(t, l.last(t, 1))
		require.Empty(t, l.errors())
		_, err := tokens.Load()
		require.ErrorIs(t, err, identity.ErrNotFound, "a rejected session is forgotten")
	})
}

func TestProvider_RestoreTransportFailureIsFeedError(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.addAccount(testEmail, testPassword, "")
	tokens := tokenstore.NewMemoryStore()

	first := newProvider(t, issuer, tokens)
	require.NoError(t, first.Start(context.Background()))
	_, err := first.SignIn(context.Background(), identity.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	first.Stop()

	second := newProvider(t, issuer, tokens)
	issuer.server.Close()

	l := &listener{}
	second.Subscribe(l.onChange, l.onError)
	require.NoError(t, second.Start(context.Background()))

	require.Nil(t, l.last(t, 1))
	require.Eventually(t, func() bool { return len(l.errors()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, l.errors()[0], identity.ErrIdentityFeed)

	_, err = tokens.Load()
	require.NoError(t, err, "the session is kept for the next start")
}

func TestProvider_RestoreTransportFailureLeavesBanner(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.addAccount(testEmail, testPassword, "")
	tokens := tokenstore.NewMemoryStore()

	first := newProvider(t, issuer, tokens)
	require.NoError(t, first.Start(context.Background()))
	_, err := first.SignIn(context.Background(), identity.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	first.Stop()

	second := newProvider(t, issuer, tokens)
	issuer.server.Close()

	store, err := session.Initialize(second)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, second.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := store.Await(ctx, func(s session.State) bool { return s.Version >= 2 })
	require.NoError(t, err)

	require.Equal(t, session.PhaseReady, state.Phase)
	require.False(t, state.SignedIn())
	require.ErrorIs(t, state.FeedErr, identity.ErrIdentityFeed)
	require.ErrorIs(t, store.State().FeedErr, identity.ErrIdentityFeed)
}

func TestProvider_SignUp(t *testing.T) {
	issuer := newFakeIssuer(t)
	p := newProvider(t, issuer, tokenstore.NewMemoryStore())
	require.NoError(t, p.Start(context.Background()))

	id, err := p.SignUp(context.Background(), identity.Credential{Email: "New.User@Example.com", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "new.user@example.com", id.Email)

	_, err = p.SignUp(context.Background(), identity.Credential{Email: "new.user@example.com", Password: testPassword})
	require.ErrorIs(t, err, identity.ErrEmailInUse)

	_, err = p.SignUp(context.Background(), identity.Credential{Email: "short@example.com", Password: "short"})
	require.ErrorIs(t, err, identity.ErrInvalidRequest)
}

func TestProvider_SignUpUnsupported(t *testing.T) {
	issuer := newFakeIssuer(t)
	p, err := oidcidp.New(context.Background(), oidcidp.Config{
		Issuer:       issuer.URL(),
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}, tokenstore.NewMemoryStore())
	require.NoError(t, err)
	t.Cleanup(p.Stop)

	_, err = p.SignUp(context.Background(), identity.Credential{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, oidcidp.ErrSignUpUnsupported)
}
