package session

import "github.com/jrsteele09/qsmate/identity"

// Phase distinguishes "auth state unknown" from "auth state determined".
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// State is a read-only snapshot of the session. The identity is only
// reachable through Identity, which returns a copy.
type State struct {
	identity *identity.Identity
	Phase    Phase
	FeedErr  error  // last identity feed failure, cleared by the next notification
	Version  uint64 // incremented on every write
}

// NewState builds a snapshot, mainly for callers that evaluate hypothetical
// states such as tests and previews.
func NewState(phase Phase, id *identity.Identity) State {
	return State{identity: id.Clone(), Phase: phase}
}

// Identity returns a copy of the signed-in identity, or nil.
func (s State) Identity() *identity.Identity {
	return s.identity.Clone()
}

// SignedIn reports whether an identity is present, regardless of phase.
func (s State) SignedIn() bool {
	return s.identity != nil
}

// Email returns the identity's email, or "" when signed out.
func (s State) Email() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Email
}

// UserID returns the identity's ID, or "" when signed out.
func (s State) UserID() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}
