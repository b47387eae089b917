// Package auth drives the authorization-code+PKCE flow against the
// identity provider and derives application roles from directory groups.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/telagent/gateway/internal/config"
	"github.com/telagent/gateway/internal/domain"
)

// Authenticator owns the sign-in flow and token lifecycle.
type Authenticator struct {
	oauth    *oauth2.Config
	flows    FlowStore
	verifier *oidc.IDTokenVerifier
	tenantID string
	now      func() time.Time
}

// NewAuthenticator builds an authenticator. When an OIDC issuer is
// configured, endpoints come from discovery and ID tokens are verified;
// otherwise the tenant's authorize/token URLs are used directly and
// claims are read unverified.
func NewAuthenticator(ctx context.Context, cfg *config.Config, flows FlowStore) (*Authenticator, error) {
	a := &Authenticator{
		flows:    flows,
		tenantID: cfg.TenantID,
		now:      time.Now,
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", cfg.TenantID),
		TokenURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
	}
	if cfg.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to get OIDC provider: %w", err)
		}
		endpoint = provider.Endpoint()
		a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}

	a.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     endpoint,
		Scopes:       cfg.Scopes,
	}
	return a, nil
}

// SetEndpoint overrides the provider endpoints. Used by tests.
func (a *Authenticator) SetEndpoint(authURL, tokenURL string) {
	a.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// BeginFlow generates a state nonce and PKCE verifier, persists the flow
// state, and returns the authorization URI to redirect the caller to.
func (a *Authenticator) BeginFlow(ctx context.Context) (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	authURI := a.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier))

	flow := &domain.AuthFlowState{
		State:     state,
		Verifier:  verifier,
		AuthURI:   authURI,
		CreatedAt: a.now(),
	}
	if err := a.flows.Save(ctx, flow); err != nil {
		return "", fmt.Errorf("failed to persist auth flow: %w", err)
	}
	return authURI, nil
}

// CompleteFlow exchanges an authorization code for a token set. The flow
// state is consumed (single use). Fails closed when no PKCE verifier is
// retrievable for the callback state: PKCE is mandatory, never optional.
func (a *Authenticator) CompleteFlow(ctx context.Context, code, callbackState string) (domain.TokenSet, error) {
	flow, err := a.flows.Take(ctx, callbackState)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("flow store lookup failed: %w", err)
	}
	if flow == nil || flow.Verifier == "" {
		return domain.TokenSet{}, &domain.AuthFlowError{Reason: "no PKCE verifier for state"}
	}

	tok, err := a.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return domain.TokenSet{}, &domain.AuthFlowError{
				Reason: fmt.Sprintf("provider rejected code: %s: %s", retrieveErr.ErrorCode, retrieveErr.ErrorDescription),
			}
		}
		return domain.TokenSet{}, &domain.AuthFlowError{Reason: err.Error()}
	}

	set := domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	return set, nil
}

// RefreshSilent attempts a silent renewal. On failure the caller must
// invalidate the entire session; no partial-refresh state is valid.
func (a *Authenticator) RefreshSilent(ctx context.Context, token domain.TokenSet) (domain.TokenSet, error) {
	if token.RefreshToken == "" {
		return domain.TokenSet{}, &domain.TokenExchangeError{Code: "no_refresh_token", Description: "session has no refresh capability"}
	}
	src := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return domain.TokenSet{}, &domain.TokenExchangeError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
		}
		return domain.TokenSet{}, &domain.TokenExchangeError{Code: "refresh_failed", Description: err.Error()}
	}

	set := domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if set.RefreshToken == "" {
		set.RefreshToken = token.RefreshToken
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	return set, nil
}

// IdentityFromToken extracts identity claims from the token set,
// verifying the ID token when a verifier is available.
func (a *Authenticator) IdentityFromToken(ctx context.Context, token domain.TokenSet) (*IdentityClaims, error) {
	raw := token.IDToken
	if raw == "" {
		raw = token.AccessToken
	}
	if raw == "" {
		return nil, fmt.Errorf("token set carries no parsable token")
	}
	if a.verifier != nil && token.IDToken != "" {
		idToken, err := a.verifier.Verify(ctx, token.IDToken)
		if err != nil {
			return nil, fmt.Errorf("ID token verification failed: %w", err)
		}
		var m map[string]interface{}
		if err := idToken.Claims(&m); err != nil {
			return nil, fmt.Errorf("claims extraction failed: %w", err)
		}
		return claimsFromMap(m), nil
	}
	return PeekClaims(raw)
}

// LogoutURL builds the provider sign-out URL.
func (a *Authenticator) LogoutURL(postLogoutRedirect string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/logout?post_logout_redirect_uri=%s",
		a.tenantID, url.QueryEscape(postLogoutRedirect))
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
