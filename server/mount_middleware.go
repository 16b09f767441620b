package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/qsmate/guard"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyMount stores the guard mount a protected handler was admitted under
const ContextKeyMount ContextKey = "mount"

// RequireMount admits a request only while the guard has mounted group.
// While auth state is unknown it serves the loading screen and nothing else;
// a signed-out device is sent to the public entry and a signed-in device is
// sent to the index of the group its role mounts.
func (s *Server) RequireMount(group guard.ScreenGroup) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mount := s.gate.Guard.Current()

			switch {
			case mount.Decision == guard.DecisionPending:
				s.writeLoading(w)
				return
			case mount.Decision == guard.DecisionDeny:
				redirectSuccess(w, r, guard.PublicEntry)
				return
			case !mount.Mounts(group):
				redirectSuccess(w, r, mount.Entry())
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyMount, mount)
			next(w, r.WithContext(ctx))
		}
	}
}

// mountFromContext returns the mount stored by RequireMount, falling back to
// the guard's current mount.
func (s *Server) mountFromContext(ctx context.Context) guard.Mount {
	if mount, ok := ctx.Value(ContextKeyMount).(guard.Mount); ok {
		return mount
	}
	return s.gate.Guard.Current()
}
