package guard

import "github.com/jrsteele09/qsmate/session"

// PublicEntry is the path of the sign-in screen.
const PublicEntry = "/"

// Mount describes what the screen router shows. Role and Group are only set
// when Decision is allow.
type Mount struct {
	Decision Decision    `json:"decision"`
	Role     Role        `json:"role,omitempty"`
	Group    ScreenGroup `json:"group,omitempty"`
}

// Evaluate derives the mount for a snapshot.
func Evaluate(state session.State, classifier *Classifier) Mount {
	decision := Decide(state)
	if decision != DecisionAllow {
		return Mount{Decision: decision}
	}
	role := classifier.Classify(state.Email())
	return Mount{Decision: decision, Role: role, Group: role.Group()}
}

// Entry is where navigation lands for this mount: the protected group's
// index when allowed, otherwise the public entry.
func (m Mount) Entry() string {
	if m.Decision != DecisionAllow {
		return PublicEntry
	}
	return GroupIndexPath(m.Group)
}

// Mounts reports whether the group's screens are reachable.
func (m Mount) Mounts(group ScreenGroup) bool {
	return m.Decision == DecisionAllow && m.Group == group
}

// GroupIndexPath is the path of a screen group's first screen.
func GroupIndexPath(group ScreenGroup) string {
	return "/" + string(group) + "/index"
}
