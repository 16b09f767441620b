// Package identity defines the boundary between the session gate and the
// external identity provider that authenticates users.
package identity

import (
	"context"
	"strings"
)

// Identity is the authenticated principal reported by an identity provider.
// Email may be empty when the provider does not release it.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Clone returns a copy that does not alias the provider's value. A nil
// receiver clones to nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Same reports whether a and b refer to the same principal. Two nil values are
// the same; a nil and a non-nil value are not.
func Same(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// Credential is an email/password pair for sign-in and sign-up.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NormalisedEmail trims and lower-cases the email for lookups.
func (c Credential) NormalisedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// Provider is the identity provider contract consumed by the session gate.
//
// Subscribe registers a change listener and returns a handle that removes it.
// Once the provider has resolved its initial auth state every subscriber
// receives the current identity (possibly nil) as its first notification, and
// then one notification per change, in order. onError reports failures of the
// change feed itself; it may be nil.
type Provider interface {
	Subscribe(onChange func(*Identity), onError func(error)) (unsubscribe func())
	SignIn(ctx context.Context, credential Credential) (*Identity, error)
	SignUp(ctx context.Context, credential Credential) (*Identity, error)
	SignOut(ctx context.Context) error
}

// Runner is implemented by providers that need to resolve their initial state
// (for example by restoring a persisted session) before the first
// notification, and to release resources at teardown.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}
