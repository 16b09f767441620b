package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	GateConfig
	IdentityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// GateConfig configures role classification and how long handlers wait for
// the route guard to settle after an auth action.
type GateConfig interface {
	GetRoleAllowList() (map[string]string, error)
	GetDefaultRole() string
	GetSignInSettleTimeout() time.Duration
	GetSignOutSettleTimeout() time.Duration
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig interface {
	GetIdentityProvider() string
	GetTokenSecret() string
	GetSessionTokenExpiry() time.Duration
	GetBootstrapAdminEmail() string
	GetBootstrapAdminPassword() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCScopes() []string
	GetOIDCSignupURL() string
}

type mainConfig struct {
	EnvVars
	Cors
	Gate
	Identity
}

func New() Config {
	return mainConfig{}
}
