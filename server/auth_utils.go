package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/jrsteele09/qsmate/identity"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxFormBytes    = 1 << 16
)

// redirectSuccess helper for htmx-aware redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeRequest fills dst from a JSON body or, for form posts, calls fromForm.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, fromForm func(r *http.Request)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form body: %w", err)
	}
	fromForm(r)
	return nil
}

func readCredential(w http.ResponseWriter, r *http.Request) (identity.Credential, error) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := decodeRequest(w, r, &body, func(r *http.Request) {
		body.Email = r.PostFormValue("email")
		body.Password = r.PostFormValue("password")
	})
	if err != nil {
		return identity.Credential{}, err
	}

	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		return identity.Credential{}, errors.New("email and password are required")
	}
	return identity.Credential{Email: body.Email, Password: body.Password}, nil
}

// credentialErrorStatus maps a provider error to the status and error code
// shown on the sign-in screen.
func credentialErrorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, identity.ErrEmailInUse):
		return http.StatusBadRequest, "email_in_use", "an account already exists for this email"
	case errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", identity.ErrWeakPassword.Error()
	case errors.Is(err, identity.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", identity.ErrInvalidEmail.Error()
	case errors.Is(err, identity.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, identity.ErrSignUpUnsupported):
		return http.StatusNotImplemented, "sign_up_unsupported", identity.ErrSignUpUnsupported.Error()
	default:
		return http.StatusBadGateway, "provider_error", "the identity provider could not complete the request"
	}
}
