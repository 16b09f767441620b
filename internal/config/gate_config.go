package config

import (
	"strings"
	"time"

	"github.com/jrsteele09/qsmate/internal/errors"
)

type Gate struct{}

var _ GateConfig = Gate{}

// GetRoleAllowList parses ROLE_ALLOW_LIST, a comma separated list of
// email=role pairs. Role names are validated by the guard when the
// classifier is built.
func (Gate) GetRoleAllowList() (map[string]string, error) {
	return ParseAllowList(GetEnv("ROLE_ALLOW_LIST", ""))
}

func (Gate) GetDefaultRole() string {
	return GetEnv("DEFAULT_ROLE", "user")
}

func (Gate) GetSignInSettleTimeout() time.Duration {
	return GetDurationEnv("SIGNIN_SETTLE_TIMEOUT", 5*time.Second)
}

func (Gate) GetSignOutSettleTimeout() time.Duration {
	return GetDurationEnv("SIGNOUT_SETTLE_TIMEOUT", 5*time.Second)
}

// ParseAllowList rejects a pair without an email or role, and two emails that
// only differ in case or surrounding space. Blank entries are ignored.
func ParseAllowList(raw string) (map[string]string, error) {
	allowList := make(map[string]string)
	seen := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		email, role, ok := strings.Cut(pair, "=")
		email = strings.TrimSpace(email)
		role = strings.TrimSpace(role)
		if !ok || email == "" || role == "" {
			return nil, errors.Wrapf(errors.ErrConfiguration, "ROLE_ALLOW_LIST entry %q is not email=role", strings.TrimSpace(pair))
		}
		key := strings.ToLower(email)
		if previous, dup := seen[key]; dup {
			return nil, errors.Wrapf(errors.ErrConfiguration, "ROLE_ALLOW_LIST lists %q and %q", previous, email)
		}
		seen[key] = email
		allowList[email] = role
	}
	return allowList, nil
}
