// Package guard turns session snapshots into routing decisions: whether any
// screens may mount, and which protected screen group a signed-in identity
// reaches.
package guard

import "github.com/jrsteele09/qsmate/session"

// Decision is the render decision for protected screen groups.
type Decision string

const (
	DecisionPending Decision = "pending" // auth state unknown: render the loading indicator only
	DecisionAllow   Decision = "allow"
	DecisionDeny    Decision = "deny"
)

// Decide is a pure function of the session snapshot.
func Decide(state session.State) Decision {
	switch {
	case state.Phase != session.PhaseReady:
		return DecisionPending
	case state.SignedIn():
		return DecisionAllow
	default:
		return DecisionDeny
	}
}
