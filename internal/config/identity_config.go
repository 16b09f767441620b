package config

import (
	"strings"
	"time"
)

const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityProvider() string {
	return strings.ToLower(GetEnv("IDENTITY_PROVIDER", ProviderLocal))
}

// GetTokenSecret is the HS256 key for locally issued session tokens. When
// empty the local provider generates a random key, which means persisted
// sessions do not survive a restart.
func (Identity) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "")
}

func (Identity) GetSessionTokenExpiry() time.Duration {
	return GetDurationEnv("SESSION_TOKEN_EXPIRY", 30*24*time.Hour)
}

func (Identity) GetBootstrapAdminEmail() string {
	return GetEnv("BOOTSTRAP_ADMIN_EMAIL", "")
}

func (Identity) GetBootstrapAdminPassword() string {
	return GetEnv("BOOTSTRAP_ADMIN_PASSWORD", "")
}

func (Identity) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (Identity) GetOIDCClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

func (Identity) GetOIDCClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (Identity) GetOIDCScopes() []string {
	return strings.Fields(GetEnv("OIDC_SCOPES", "openid email profile offline_access"))
}

func (Identity) GetOIDCSignupURL() string {
	return GetEnv("OIDC_SIGNUP_URL", "")
}
