// Package obo exchanges a caller's bearer assertion for a downstream
// token via the on-behalf-of grant.
package obo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/telagent/gateway/internal/domain"
)

// jwt-bearer grant with requested_token_use=on_behalf_of. x/oauth2 has no
// helper for this grant, so the form POST is built directly.
const oboGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// Exchanger performs on-behalf-of token exchanges with the backend app's
// credentials.
type Exchanger struct {
	tenantID     string
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// NewExchanger creates an exchanger. Credentials may be empty; exchange
// calls then fail with a ConfigurationError.
func NewExchanger(tenantID, clientID, clientSecret string, timeout time.Duration) *Exchanger {
	return &Exchanger{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// SetTokenURL overrides the token endpoint. Used by tests.
func (e *Exchanger) SetTokenURL(u string) {
	e.tokenURL = u
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeUserAssertion trades the caller's bearer token for a token
// scoped to the downstream API, preserving the user's identity.
func (e *Exchanger) ExchangeUserAssertion(ctx context.Context, bearerToken, scope string) (domain.TokenSet, error) {
	if e.tenantID == "" || e.clientID == "" || e.clientSecret == "" {
		return domain.TokenSet{}, &domain.ConfigurationError{Setting: "TENANT_ID / BACKEND_CLIENT_ID / BACKEND_CLIENT_SECRET"}
	}

	form := url.Values{
		"grant_type":          {oboGrantType},
		"client_id":           {e.clientID},
		"client_secret":       {e.clientSecret},
		"assertion":           {bearerToken},
		"scope":               {scope},
		"requested_token_use": {"on_behalf_of"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("failed to read token response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return domain.TokenSet{}, &domain.TokenExchangeError{
			Code:        fmt.Sprintf("http_%d", resp.StatusCode),
			Description: string(body),
		}
	}
	if resp.StatusCode != http.StatusOK || tok.Error != "" || tok.AccessToken == "" {
		code := tok.Error
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return domain.TokenSet{}, &domain.TokenExchangeError{Code: code, Description: tok.ErrorDescription}
	}

	set := domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if tok.ExpiresIn > 0 {
		set.ExpiresAt = e.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return set, nil
}
