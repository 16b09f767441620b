package fakeidp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/qsmate/identity"
)

var _ identity.Provider = (*FakeProvider)(nil)
var _ identity.Runner = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity provider with hooks for injecting
// sign-out failures and delays.
type FakeProvider struct {
	*identity.Feed

	lock        sync.Mutex
	accounts    map[string]fakeAccount // normalised email -> account
	signOutErr  error
	signUpErr   error
	signOutGate chan struct{}
	signOuts    int
	quiet       bool
}

type fakeAccount struct {
	identity identity.Identity
	password string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Feed:     identity.NewFeed(),
		accounts: make(map[string]fakeAccount),
	}
}

// Start resolves the feed with no signed-in identity.
func (fp *FakeProvider) Start(ctx context.Context) error {
	fp.Publish(nil)
	return nil
}

func (fp *FakeProvider) Stop() {
	fp.Close()
}

// AddAccount registers an account and returns its identity.
func (fp *FakeProvider) AddAccount(email, password string) *identity.Identity {
	fp.lock.Lock()
	defer fp.lock.Unlock()

	cred := identity.Credential{Email: email}
	id := identity.Identity{ID: uuid.New().String(), Email: email}
	fp.accounts[cred.NormalisedEmail()] = fakeAccount{identity: id, password: password}
	return id.Clone()
}

func (fp *FakeProvider) SignIn(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	fp.lock.Lock()
	account, ok := fp.accounts[credential.NormalisedEmail()]
	fp.lock.Unlock()

	if !ok || account.password != credential.Password {
		return nil, identity.ErrInvalidCredentials
	}
	fp.Publish(&account.identity)
	return account.identity.Clone(), nil
}

func (fp *FakeProvider) SignUp(ctx context.Context, credential identity.Credential) (*identity.Identity, error) {
	fp.lock.Lock()
	if fp.signUpErr != nil {
		err := fp.signUpErr
		fp.lock.Unlock()
		return nil, err
	}
	if _, exists := fp.accounts[credential.NormalisedEmail()]; exists {
		fp.lock.Unlock()
		return nil, identity.ErrEmailInUse
	}
	fp.lock.Unlock()

	fp.AddAccount(credential.Email, credential.Password)
	return fp.SignIn(ctx, credential)
}

// SignOut waits on the gate (if set), then fails with the configured error
// or publishes a nil identity.
func (fp *FakeProvider) SignOut(ctx context.Context) error {
	fp.lock.Lock()
	fp.signOuts++
	gate := fp.signOutGate
	err := fp.signOutErr
	fp.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	fp.lock.Lock()
	quiet := fp.quiet
	fp.lock.Unlock()
	if !quiet {
		fp.Publish(nil)
	}
	return nil
}

// SetQuietSignOut stops SignOut from publishing the nil identity, leaving the
// caller's own continuation as the only writer.
func (fp *FakeProvider) SetQuietSignOut(quiet bool) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.quiet = quiet
}

// SetSignOutError makes subsequent SignOut calls fail with err (nil clears).
func (fp *FakeProvider) SetSignOutError(err error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.signOutErr = err
}

// SetSignUpError makes subsequent SignUp calls fail with err (nil clears).
func (fp *FakeProvider) SetSignUpError(err error) {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.signUpErr = err
}

// HoldSignOut makes SignOut block until the returned release func is called.
func (fp *FakeProvider) HoldSignOut() (release func()) {
	gate := make(chan struct{})
	fp.lock.Lock()
	fp.signOutGate = gate
	fp.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			fp.lock.Lock()
			fp.signOutGate = nil
			fp.lock.Unlock()
			close(gate)
		})
	}
}

// SignOutCalls reports how many times SignOut reached the provider.
func (fp *FakeProvider) SignOutCalls() int {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	return fp.signOuts
}
