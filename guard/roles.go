package guard

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/qsmate/identity"
)

// Role selects which protected screen group an identity reaches.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSurveyor Role = "surveyor"
	RoleUser     Role = "user"
)

// ScreenGroup is a named bundle of protected screens.
type ScreenGroup string

const (
	GroupAdmin     ScreenGroup = "admin"
	GroupSurveyors ScreenGroup = "surveyors"
	GroupUsers     ScreenGroup = "users"
)

var roleGroups = map[Role]ScreenGroup{
	RoleAdmin:    GroupAdmin,
	RoleSurveyor: GroupSurveyors,
	RoleUser:     GroupUsers,
}

// ParseRole accepts a role name in any case.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := roleGroups[role]; !ok {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return role, nil
}

// Group returns the screen group the role mounts.
func (r Role) Group() ScreenGroup {
	return roleGroups[r]
}

// Classifier maps an identity's email to a role through a configured
// allow-list. Emails are compared after trimming and lower-casing.
type Classifier struct {
	allowList   map[string]Role
	defaultRole Role
}

// NewClassifier validates every role in allowList and the default role. An
// unknown role is a configuration error.
func NewClassifier(allowList map[string]string, defaultRole string) (*Classifier, error) {
	def, err := ParseRole(defaultRole)
	if err != nil {
		return nil, identity.ConfigurationError(fmt.Errorf("[NewClassifier] default role: %w", err))
	}

	c := &Classifier{
		allowList:   make(map[string]Role, len(allowList)),
		defaultRole: def,
	}
	for email, name := range allowList {
		role, err := ParseRole(name)
		if err != nil {
			return nil, identity.ConfigurationError(fmt.Errorf("[NewClassifier] allow-list entry %q: %w", email, err))
		}
		key := normaliseEmail(email)
		if _, dup := c.allowList[key]; dup {
			return nil, identity.ConfigurationError(fmt.Errorf("[NewClassifier] allow-list entry %q is listed more than once", key))
		}
		c.allowList[key] = role
	}
	return c, nil
}

// Classify is total: an empty or unlisted email gets the default role.
func (c *Classifier) Classify(email string) Role {
	if role, ok := c.allowList[normaliseEmail(email)]; ok {
		return role
	}
	return c.defaultRole
}

// DefaultRole returns the role given to unlisted emails.
func (c *Classifier) DefaultRole() Role {
	return c.defaultRole
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
