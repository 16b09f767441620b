package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrsteele09/qsmate/guard"
	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/session"
	"github.com/rs/zerolog/log"
)

// LoginSubmissionHandler signs in with the posted credential and, once the
// guard has mounted the identity's group, redirects to that group's index.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return s.credentialHandler("sign in", s.gate.Provider.SignIn)
}

// SignupSubmissionHandler registers the posted credential and signs it in.
func (s *Server) SignupSubmissionHandler() http.HandlerFunc {
	return s.credentialHandler("sign up", s.gate.Provider.SignUp)
}

func (s *Server) credentialHandler(action string, submit func(context.Context, identity.Credential) (*identity.Identity, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential, err := readCredential(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		id, err := submit(r.Context(), credential)
		if err != nil {
			status, code, description := credentialErrorStatus(err)
			log.Info().Err(err).Str("email", credential.NormalisedEmail()).Msgf("Failed to %s", action)
			writeJSONError(w, code, description, status)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetSignInSettleTimeout())
		defer cancel()

		mount, err := s.settle(ctx, func(state session.State) bool {
			return state.UserID() == id.ID
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", id.ID).Msg("Route guard did not settle after sign in")
			writeJSONError(w, "temporarily_unavailable", "signed in, but the session has not settled yet", http.StatusServiceUnavailable)
			return
		}

		redirectSuccess(w, r, mount.Entry())
	}
}

// LogoutHandler runs the sign-out protocol. A provider failure leaves the
// user signed in and is reported; it is never swallowed.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Sessions.SignOut(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, identity.ErrSignOut) {
				status = http.StatusBadGateway
			}
			writeJSONError(w, "sign_out_failed", err.Error(), status)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetSignOutSettleTimeout())
		defer cancel()

		// SignOut has written its result, or yielded to a newer notification,
		// by the time it returns. Only the guard is left to catch up.
		mount, err := s.settle(ctx, func(session.State) bool { return true })
		if err != nil {
			log.Warn().Err(err).Msg("Route guard did not settle after sign out")
			writeJSONError(w, "temporarily_unavailable", "signed out, but the session has not settled yet", http.StatusServiceUnavailable)
			return
		}

		redirectSuccess(w, r, mount.Entry())
	}
}

// settle waits for a session snapshot satisfying ready and then for the
// guard to mount what the latest snapshot implies.
func (s *Server) settle(ctx context.Context, ready func(session.State) bool) (guard.Mount, error) {
	if _, err := s.gate.Sessions.Await(ctx, ready); err != nil {
		return guard.Mount{}, err
	}
	classifier := s.gate.Guard.Classifier()
	return s.gate.Guard.Await(ctx, func(m guard.Mount) bool {
		return m == guard.Evaluate(s.gate.Sessions.State(), classifier)
	})
}
