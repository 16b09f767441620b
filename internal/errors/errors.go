package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session gate
var (
	// Identity provider errors
	ErrIdentityFeed       = errors.New("identity feed error")
	ErrSignOut            = errors.New("sign out failed")
	ErrConfiguration      = errors.New("configuration error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrSignUpUnsupported  = errors.New("sign up is not supported by the identity provider")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrClosed         = errors.New("closed")
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
