package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/lingo-utils-authgate"
	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

// --- Mock implementations ---

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context, token string) authgate.SessionResult {
	args := m.Called(ctx, token)
	return args.Get(0).(authgate.SessionResult)
}

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*gotrue.AuthResponse, error) {
	args := m.Called(ctx, email, password, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gotrue.AuthResponse), args.Error(1)
}

func (m *mockAuth) SignInWithPassword(ctx context.Context, email, password string) (*gotrue.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gotrue.Session), args.Error(1)
}

func (m *mockAuth) SignOut(ctx context.Context, accessToken string, scope gotrue.SignOutScope) error {
	args := m.Called(ctx, accessToken, scope)
	return args.Error(0)
}

func (m *mockAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *mockAuth) AuthorizeURL(provider string, opts gotrue.AuthorizeOptions) string {
	args := m.Called(provider, opts)
	return args.String(0)
}

func (m *mockAuth) ExchangeCodeForSession(ctx context.Context, authCode, codeVerifier string) (*gotrue.Session, error) {
	args := m.Called(ctx, authCode, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gotrue.Session), args.Error(1)
}

// --- Helpers ---

func setupRouter(checker SessionChecker, auth AuthProvider) http.Handler {
	opts := Options{
		Checker:                  checker,
		OAuthProviders:           []string{"google", "GitHub"},
		OAuthRedirectURL:         "https://app.example.com/callback",
		PasswordResetRedirectURL: "https://app.example.com/reset",
	}
	if auth != nil {
		opts.Auth = auth
	}
	return New(opts).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func testUser() *gotrue.User {
	return &gotrue.User{
		ID:           "u1",
		Email:        "jane@example.com",
		UserMetadata: json.RawMessage(`{"full_name":"Jane Doe"}`),
	}
}

func testSession() *gotrue.Session {
	return &gotrue.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		User:         testUser(),
	}
}

// --- Tests ---

func TestHealthz(t *testing.T) {
	w := doJSON(t, setupRouter(new(mockChecker), nil), http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSessionCheck_Authenticated(t *testing.T) {
	checker := new(mockChecker)
	checker.On("Check", mock.Anything, "good-token").
		Return(authgate.Authenticated(&authgate.Identity{Subject: "u1"}))

	w := doJSON(t, setupRouter(checker, nil), http.MethodGet, "/auth/session-check", nil, bearer("good-token"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SessionCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "u1", resp.UserID)
	checker.AssertExpectations(t)
}

func TestSessionCheck_UniformRejection(t *testing.T) {
	checker := new(mockChecker)
	checker.On("Check", mock.Anything, mock.Anything).Return(authgate.Unauthenticated)
	h := setupRouter(checker, nil)

	cases := map[string]http.Header{
		"missing header": nil,
		"wrong scheme":   {"Authorization": {"Basic dXNlcjpwYXNz"}},
		"bad token":      bearer("garbage"),
	}
	var bodies []string
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodGet, "/auth/session-check", nil, header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			bodies = append(bodies, w.Body.String())
		})
	}
	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}
	checker.AssertCalled(t, "Check", mock.Anything, "")
	checker.AssertCalled(t, "Check", mock.Anything, "garbage")
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(req), "header %q", header)
	}
}

func TestCurrentUser(t *testing.T) {
	checker := new(mockChecker)
	identity := &authgate.Identity{
		Subject: "u1",
		Email:   "jane@example.com",
		Claims:  &authgate.Claims{UserMetadata: map[string]any{"full_name": "Jane Doe"}},
	}
	checker.On("Check", mock.Anything, "good-token").Return(authgate.Authenticated(identity))

	w := doJSON(t, setupRouter(checker, nil), http.MethodGet, "/auth/user", nil, bearer("good-token"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.ID)
	assert.Equal(t, "jane@example.com", resp.Email)
	assert.Equal(t, "Jane Doe", resp.FullName)
}

func TestSignup_Success(t *testing.T) {
	auth := new(mockAuth)
	auth.On("SignUp", mock.Anything, "jane@example.com", "hunter222",
		map[string]any{gotrue.FullNameField: "Jane Doe"}).
		Return(&gotrue.AuthResponse{User: testUser(), Session: testSession()}, nil)

	w := doJSON(t, setupRouter(new(mockChecker), auth), http.MethodPost, "/auth/signup", map[string]string{
		"email":     "jane@example.com",
		"password":  "hunter222",
		"full_name": "Jane Doe",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "Jane Doe", resp.User.FullName)
	assert.Equal(t, "access", resp.Token.AccessToken)
	assert.Equal(t, "bearer", resp.Token.TokenType)
	auth.AssertExpectations(t)
}

func TestSignup_PendingConfirmation(t *testing.T) {
	auth := new(mockAuth)
	auth.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&gotrue.AuthResponse{User: testUser()}, nil)

	w := doJSON(t, setupRouter(new(mockChecker), auth), http.MethodPost, "/auth/signup", map[string]string{
		"email":     "jane@example.com",
		"password":  "hunter222",
		"full_name": "Jane Doe",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.User.ID)
	assert.Empty(t, resp.Token.AccessToken)
}

func TestSignup_Validation(t *testing.T) {
	auth := new(mockAuth)
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodPost, "/auth/signup", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Contains(t, resp.Details, "email")
	assert.Contains(t, resp.Details, "password")
	assert.Contains(t, resp.Details, "full_name")

	w = doJSON(t, h, http.MethodPost, "/auth/signup", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	auth.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignup_ProviderErrors(t *testing.T) {
	body := map[string]string{
		"email":     "jane@example.com",
		"password":  "hunter222",
		"full_name": "Jane Doe",
	}

	auth := new(mockAuth)
	auth.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &gotrue.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "User already registered"}).Once()
	auth.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodPost, "/auth/signup", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Registration failed: User already registered", decodeError(t, w).Message)

	w = doJSON(t, h, http.MethodPost, "/auth/signup", body, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogin(t *testing.T) {
	auth := new(mockAuth)
	auth.On("SignInWithPassword", mock.Anything, "jane@example.com", "hunter222").Return(testSession(), nil)
	auth.On("SignInWithPassword", mock.Anything, "jane@example.com", "wrong").
		Return(nil, &gotrue.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"})
	auth.On("SignInWithPassword", mock.Anything, "down@example.com", mock.Anything).
		Return(nil, &gotrue.APIError{StatusCode: http.StatusBadGateway})
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "jane@example.com", "password": "hunter222"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "access", resp.Token.AccessToken)
	assert.Equal(t, "refresh", resp.Token.RefreshToken)
	assert.Equal(t, "jane@example.com", resp.User.Email)

	w = doJSON(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "jane@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, msgInvalidCredentials, decodeError(t, w).Message)

	w = doJSON(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "down@example.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogout(t *testing.T) {
	auth := new(mockAuth)
	auth.On("SignOut", mock.Anything, "live", gotrue.SignOutLocal).Return(nil)
	auth.On("SignOut", mock.Anything, "stale", gotrue.SignOutLocal).
		Return(&gotrue.APIError{StatusCode: http.StatusUnauthorized})
	auth.On("SignOut", mock.Anything, "broken", gotrue.SignOutLocal).
		Return(&gotrue.APIError{StatusCode: http.StatusInternalServerError})
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodPost, "/auth/logout", nil, bearer("live"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Successfully logged out"}`, w.Body.String())

	w = doJSON(t, h, http.MethodPost, "/auth/logout", nil, bearer("stale"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/auth/logout", nil, bearer("broken"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doJSON(t, h, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResetPassword_DoesNotDiscloseOutcome(t *testing.T) {
	auth := new(mockAuth)
	auth.On("ResetPasswordForEmail", mock.Anything, "known@example.com", "https://app.example.com/reset").Return(nil)
	auth.On("ResetPasswordForEmail", mock.Anything, "unknown@example.com", mock.Anything).
		Return(&gotrue.APIError{StatusCode: http.StatusNotFound})
	h := setupRouter(new(mockChecker), auth)

	known := doJSON(t, h, http.MethodPost, "/auth/reset-password", map[string]string{"email": "known@example.com"}, nil)
	unknown := doJSON(t, h, http.MethodPost, "/auth/reset-password", map[string]string{"email": "unknown@example.com"}, nil)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	auth.AssertExpectations(t)
}

func TestProviderNotConfigured(t *testing.T) {
	h := setupRouter(new(mockChecker), nil)

	w := doJSON(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "jane@example.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, h, http.MethodGet, "/auth/oauth/google", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOAuthLogin(t *testing.T) {
	auth := new(mockAuth)
	auth.On("AuthorizeURL", "google", gotrue.AuthorizeOptions{
		RedirectTo:    "https://app.example.com/callback",
		Scopes:        []string{"email", "profile"},
		CodeChallenge: "challenge",
	}).Return("https://xyz.supabase.co/auth/v1/authorize?provider=google")
	auth.On("AuthorizeURL", "github", gotrue.AuthorizeOptions{
		RedirectTo: "https://other.example.com/cb",
	}).Return("https://xyz.supabase.co/auth/v1/authorize?provider=github")
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodGet, "/auth/oauth/google?scopes=email+profile&code_challenge=challenge", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp OAuthLoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://xyz.supabase.co/auth/v1/authorize?provider=google", resp.AuthURL)

	target := "/auth/oauth/GitHub?redirect_to=" + url.QueryEscape("https://other.example.com/cb")
	w = doJSON(t, h, http.MethodGet, target, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/auth/oauth/myspace", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unsupported provider: myspace", decodeError(t, w).Message)

	auth.AssertExpectations(t)
}

func TestOAuthCallback(t *testing.T) {
	auth := new(mockAuth)
	auth.On("ExchangeCodeForSession", mock.Anything, "good-code", "verifier").Return(testSession(), nil)
	auth.On("ExchangeCodeForSession", mock.Anything, "used-code", "").
		Return(nil, &gotrue.APIError{StatusCode: http.StatusBadRequest, Code: "flow_state_not_found"})
	h := setupRouter(new(mockChecker), auth)

	w := doJSON(t, h, http.MethodGet, "/auth/oauth/google/callback?code=good-code&code_verifier=verifier", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "access", resp.Token.AccessToken)

	w = doJSON(t, h, http.MethodGet, "/auth/oauth/google/callback?code=used-code", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgOAuthFailed, decodeError(t, w).Message)

	w = doJSON(t, h, http.MethodGet, "/auth/oauth/google/callback?error=access_denied", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/auth/oauth/google/callback", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing authorization code", decodeError(t, w).Message)
}

func TestCORS(t *testing.T) {
	h := New(Options{
		Checker:     new(mockChecker),
		CORSOrigins: []string{"https://app.example.com"},
	}).Routes()

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
