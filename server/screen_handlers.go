package server

import (
	"net/http"
	"slices"

	"github.com/jrsteele09/qsmate/guard"
	"github.com/jrsteele09/qsmate/session"
)

const (
	ScreenLoading = "loading"
	ScreenSignIn  = "signin"

	feedErrorBanner = "Unable to reach the identity service. Showing your last known session."
)

// groupScreens lists each protected group's screens in tab order. The first
// screen is the group's index.
var groupScreens = map[guard.ScreenGroup][]string{
	guard.GroupAdmin:     {"index", "users", "analytics", "settings"},
	guard.GroupSurveyors: {"index", "jobs", "myprojects", "earnings", "profile"},
	guard.GroupUsers:     {"index", "surveyors", "projects", "profile"},
}

type userPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// screenPayload is the screen descriptor the device shell renders.
type screenPayload struct {
	Screen string            `json:"screen"`
	Group  guard.ScreenGroup `json:"group,omitempty"`
	Role   guard.Role        `json:"role,omitempty"`
	User   *userPayload      `json:"user,omitempty"`
	Tabs   []string          `json:"tabs,omitempty"`
	Banner string            `json:"banner,omitempty"`
	Data   any               `json:"data,omitempty"`
}

type sessionPayload struct {
	Phase     session.Phase     `json:"phase"`
	Decision  guard.Decision    `json:"decision"`
	Role      guard.Role        `json:"role,omitempty"`
	Group     guard.ScreenGroup `json:"group,omitempty"`
	User      *userPayload      `json:"user,omitempty"`
	FeedError string            `json:"feedError,omitempty"`
	Entry     string            `json:"entry"`
}

// IndexHandler is the public entry. It renders the sign-in screen only once
// auth state is known and nobody is signed in.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mount := s.gate.Guard.Current()
		switch mount.Decision {
		case guard.DecisionPending:
			s.writeLoading(w)
		case guard.DecisionAllow:
			redirectSuccess(w, r, mount.Entry())
		default:
			writeJSON(w, http.StatusOK, screenPayload{
				Screen: ScreenSignIn,
				Banner: feedBanner(s.gate.Sessions.State()),
			})
		}
	}
}

// SessionHandler reports the session and mount for the device shell.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.gate.Sessions.State()
		mount := s.gate.Guard.Current()
		writeJSON(w, http.StatusOK, sessionPayload{
			Phase:     state.Phase,
			Decision:  mount.Decision,
			Role:      mount.Role,
			Group:     mount.Group,
			User:      newUserPayload(state),
			FeedError: feedBanner(state),
			Entry:     mount.Entry(),
		})
	}
}

// ScreenHandler serves a screen of group. RequireMount has already admitted
// the request.
func (s *Server) ScreenHandler(group guard.ScreenGroup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		screen := r.PathValue("screen")
		if !slices.Contains(groupScreens[group], screen) {
			writeJSONError(w, "not_found", "unknown screen", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s.newScreenPayload(r, screen, nil))
	}
}

func (s *Server) newScreenPayload(r *http.Request, screen string, data any) screenPayload {
	mount := s.mountFromContext(r.Context())
	state := s.gate.Sessions.State()
	return screenPayload{
		Screen: screen,
		Group:  mount.Group,
		Role:   mount.Role,
		User:   newUserPayload(state),
		Tabs:   groupScreens[mount.Group],
		Banner: feedBanner(state),
		Data:   data,
	}
}

func (s *Server) writeLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, screenPayload{Screen: ScreenLoading})
}

func newUserPayload(state session.State) *userPayload {
	id := state.Identity()
	if id == nil {
		return nil
	}
	return &userPayload{
		ID:            id.ID,
		Email:         id.Email,
		DisplayName:   id.DisplayName,
		EmailVerified: id.EmailVerified,
	}
}

// feedBanner is the non-fatal notice shown while the identity feed is
// failing. The last known session stays in effect.
func feedBanner(state session.State) string {
	if state.FeedErr == nil {
		return ""
	}
	return feedErrorBanner
}
