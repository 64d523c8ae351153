// Package gotrue is a thin client for the hosted Supabase Auth (GoTrue) REST
// API. It forwards credentials and codes to the provider and returns what the
// provider answers; it never stores or hashes anything itself.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authPath           = "/auth/v1"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 64 << 10
)

// Config describes how to reach the provider.
type Config struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string
	// APIKey is the project's anon (publishable) key.
	APIKey      string
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
}

// Client talks to the provider's auth endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("gotrue: project url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("gotrue: invalid project url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gotrue: api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base + authPath,
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}, nil
}

// Issuer returns the iss value the provider stamps on its tokens.
func (c *Client) Issuer() string {
	return c.baseURL
}

// JWKSURL returns the provider's published key set location.
func (c *Client) JWKSURL() string {
	return c.baseURL + "/.well-known/jwks.json"
}

// SignUp registers a user. Metadata is stored by the provider as user_metadata.
// When email confirmation is enabled the response carries no session.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthResponse, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &raw); err != nil {
		return nil, err
	}
	return decodeAuthResponse(raw)
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	return c.token(ctx, "password", body)
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, errors.New("gotrue: refresh token is required")
	}
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCodeForSession forwards an OAuth authorization code, and the
// verifier held by the caller when PKCE is in use, to the provider.
func (c *Client) ExchangeCodeForSession(ctx context.Context, authCode, codeVerifier string) (*Session, error) {
	if authCode == "" {
		return nil, errors.New("gotrue: auth code is required")
	}
	body := map[string]string{
		"auth_code":     authCode,
		"code_verifier": codeVerifier,
	}
	return c.token(ctx, "pkce", body)
}

// SignOut revokes the session that accessToken belongs to.
func (c *Client) SignOut(ctx context.Context, accessToken string, scope SignOutScope) error {
	if accessToken == "" {
		return errors.New("gotrue: access token is required")
	}
	query := url.Values{}
	if scope != "" {
		query.Set("scope", string(scope))
	}
	return c.do(ctx, http.MethodPost, "/logout", query, accessToken, nil, nil)
}

// ResetPasswordForEmail asks the provider to send a recovery email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email}, nil)
}

// GetUser returns the user owning accessToken. The provider rejects tokens
// whose session has ended, which makes this a live session probe.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, errors.New("gotrue: access token is required")
	}
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ConfirmSession reports an error when the provider no longer recognises the
// session behind accessToken.
func (c *Client) ConfirmSession(ctx context.Context, accessToken string) error {
	_, err := c.GetUser(ctx, accessToken)
	return err
}

// AuthorizeURL builds the provider URL that starts a social login. The
// provider performs the upstream OAuth dance and redirects to redirectTo.
func (c *Client) AuthorizeURL(provider string, opts AuthorizeOptions) string {
	query := url.Values{}
	query.Set("provider", provider)
	if opts.RedirectTo != "" {
		query.Set("redirect_to", opts.RedirectTo)
	}
	if len(opts.Scopes) > 0 {
		query.Set("scopes", strings.Join(opts.Scopes, " "))
	}
	if opts.CodeChallenge != "" {
		query.Set("code_challenge", opts.CodeChallenge)
		method := opts.CodeChallengeMethod
		if method == "" {
			method = "s256"
		}
		query.Set("code_challenge_method", method)
	}
	return c.baseURL + "/authorize?" + query.Encode()
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*Session, error) {
	query := url.Values{"grant_type": {grantType}}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/token", query, "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errors.New("gotrue: response did not include access_token")
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gotrue: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return newAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gotrue: decode %s response: %w", path, err)
	}
	return nil
}
