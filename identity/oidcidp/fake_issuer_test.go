package oidcidp_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "qsmate-app"
	testClientSecret = "qsmate-secret"
	testKeyID        = "test-key"
)

type fakeAccount struct {
	subject  string
	password string
	name     string
}

// fakeIssuer is a minimal OpenID provider: discovery, JWKS, password and
// refresh grants, RFC 7009 revocation and a sign-up endpoint.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	lock          sync.Mutex
	accounts      map[string]*fakeAccount
	refreshTokens map[string]string // refresh token -> email
	revoked       []string
	revokeStatus  int
	refreshStatus int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{
		t:             t,
		key:           key,
		accounts:      make(map[string]*fakeAccount),
		refreshTokens: make(map[string]string),
		revokeStatus:  http.StatusOK,
		refreshStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET /keys", f.keys)
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("POST /revoke", f.revoke)
	mux.HandleFunc("POST /signup", f.signup)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string {
	return f.server.URL
}

func (f *fakeIssuer) addAccount(email, password, name string) string {
	f.lock.Lock()
	defer f.lock.Unlock()
	subject := uuid.NewString()
	f.accounts[strings.ToLower(email)] = &fakeAccount{subject: subject, password: password, name: name}
	return subject
}

func (f *fakeIssuer) setRevokeStatus(status int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.revokeStatus = status
}

func (f *fakeIssuer) setRefreshStatus(status int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshStatus = status
}

func (f *fakeIssuer) revokedTokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/authorize",
		"token_endpoint":                        f.URL() + "/token",
		"jwks_uri":                              f.URL() + "/keys",
		"revocation_endpoint":                   f.URL() + "/revoke",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != testClientID || clientSecret != testClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	var email string
	switch r.PostForm.Get("grant_type") {
	case "password":
		email = strings.ToLower(r.PostForm.Get("username"))
		account, found := f.accounts[email]
		if !found || account.password != r.PostForm.Get("password") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		if f.refreshStatus != http.StatusOK {
			writeJSON(w, f.refreshStatus, map[string]string{"error": "invalid_grant"})
			return
		}
		var found bool
		email, found = f.refreshTokens[r.PostForm.Get("refresh_token")]
		if !found {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	refreshToken := uuid.NewString()
	f.refreshTokens[refreshToken] = email
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  uuid.NewString(),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": refreshToken,
		"id_token":      f.idToken(email, f.accounts[email]),
	})
}

func (f *fakeIssuer) idToken(email string, account *fakeAccount) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            f.URL(),
		"sub":            account.subject,
		"aud":            testClientID,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          email,
		"email_verified": true,
		"name":           account.name,
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.revokeStatus != http.StatusOK {
		w.WriteHeader(f.revokeStatus)
		return
	}
	token := r.PostForm.Get("token")
	f.revoked = append(f.revoked, token)
	delete(f.refreshTokens, token)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIssuer) signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	email := strings.ToLower(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	if email == "" || len(password) < 8 {
		http.Error(w, "email and a password of at least 8 characters are required", http.StatusBadRequest)
		return
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if _, exists := f.accounts[email]; exists {
		w.WriteHeader(http.StatusConflict)
		return
	}
	f.accounts[email] = &fakeAccount{subject: uuid.NewString(), password: password}
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
