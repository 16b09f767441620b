package server

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/qsmate/members"
	"github.com/rs/zerolog/log"
)

// MembersListHandler serves the admin users screen with the member list.
func (s *Server) MembersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.members.List(r.Context())
		if err != nil {
			logError(r.Method, r.URL.Path, err)
			writeJSONError(w, "server_error", "failed to load members", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, s.newScreenPayload(r, "users", list))
	}
}

// AddMemberHandler stores a member from the admin "add user" form.
func (s *Server) AddMemberHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form members.MemberForm
		err := decodeRequest(w, r, &form, func(r *http.Request) {
			form = members.MemberForm{
				Name:     r.PostFormValue("name"),
				Email:    r.PostFormValue("email"),
				Phone:    r.PostFormValue("phone"),
				Role:     r.PostFormValue("role"),
				Company:  r.PostFormValue("company"),
				Location: r.PostFormValue("location"),
			}
		})
		if err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		id, err := s.members.Add(r.Context(), form)
		if err != nil {
			var validationErr *members.ValidationError
			if errors.As(err, &validationErr) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":  "invalid_request",
					"errors": validationErr.Fields,
				})
				return
			}
			logError(r.Method, r.URL.Path, err)
			writeJSONError(w, "server_error", "failed to add member", http.StatusInternalServerError)
			return
		}

		log.Info().Str("member_id", id).Str("user_id", s.gate.Sessions.State().UserID()).Msg("Admin added member")
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}
