package identity

import (
	"fmt"

	"github.com/jrsteele09/qsmate/internal/errors"
)

var (
	ErrIdentityFeed       = errors.ErrIdentityFeed
	ErrSignOut            = errors.ErrSignOut
	ErrConfiguration      = errors.ErrConfiguration
	ErrInvalidCredentials = errors.ErrInvalidCredentials
	ErrEmailInUse         = errors.ErrEmailInUse
	ErrWeakPassword       = errors.ErrWeakPassword
	ErrInvalidEmail       = errors.ErrInvalidEmail
	ErrSignUpUnsupported  = errors.ErrSignUpUnsupported
	ErrInvalidRequest     = errors.ErrInvalidRequest
	ErrNotFound           = errors.ErrNotFound
)

// FeedError marks cause as a failure of the identity change feed.
func FeedError(cause error) error {
	return fmt.Errorf("%w: %w", ErrIdentityFeed, cause)
}

// ConfigurationError marks cause as a provider initialisation failure.
func ConfigurationError(cause error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, cause)
}
