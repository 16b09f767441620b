package oidcidp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/qsmate/identity"
	qserrors "github.com/jrsteele09/qsmate/internal/errors"
)

// revoke posts an RFC 7009 revocation request. Any transport failure or
// non-2xx status is an error.
func (p *Provider) revoke(ctx context.Context, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.oauth2Config.ClientID)
	if p.oauth2Config.ClientSecret != "" {
		form.Set("client_secret", p.oauth2Config.ClientSecret)
	}

	resp, err := p.postForm(ctx, p.revocationURL, form)
	if err != nil {
		return fmt.Errorf("revoke %s: %w", tokenTypeHint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revoke %s: unexpected status %d: %s", tokenTypeHint, resp.StatusCode, readSnippet(resp.Body))
	}
	return nil
}

// register posts the credential to the sign-up endpoint.
func (p *Provider) register(ctx context.Context, credential identity.Credential) error {
	form := url.Values{}
	form.Set("email", credential.NormalisedEmail())
	form.Set("password", credential.Password)
	form.Set("client_id", p.oauth2Config.ClientID)

	resp, err := p.postForm(ctx, p.signupURL, form)
	if err != nil {
		return fmt.Errorf("sign up request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return identity.ErrEmailInUse
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", qserrors.ErrInvalidRequest, readSnippet(resp.Body))
	default:
		return fmt.Errorf("sign up: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
}

func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return p.httpClient.Do(req)
}

func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(body))
}
