package localidp

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/qsmate/identity"
	qserrors "github.com/jrsteele09/qsmate/internal/errors"
)

const tokenIssuer = "qsmate-local"

// tokenSigner issues and verifies the HS256 session tokens persisted between
// runs.
type tokenSigner struct {
	secret  []byte
	expiry  time.Duration
	nowTime func() time.Time
}

// Issue creates a session token carrying the identity claims.
func (ts *tokenSigner) Issue(id *identity.Identity) (string, error) {
	now := ts.nowTime()
	claims := jwtlib.MapClaims{
		"iss":   tokenIssuer,
		"sub":   id.ID,
		"email": id.Email,
		"name":  id.DisplayName,
		"iat":   now.Unix(),
		"exp":   now.Add(ts.expiry).Unix(),
		"jti":   uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the identity the
// token was issued for.
func (ts *tokenSigner) Verify(raw string) (*identity.Identity, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(ts.nowTime),
	)

	claims := jwtlib.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwtlib.Token) (interface{}, error) {
		return ts.secret, nil
	})
	if err != nil {
		if qserrors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", qserrors.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", qserrors.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, qserrors.ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", qserrors.ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &identity.Identity{ID: sub, Email: email, DisplayName: name}, nil
}
