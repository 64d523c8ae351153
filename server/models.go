package server

import (
	"time"

	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

type signupRequest struct {
	Email    string `json:"email"     validate:"required,email"`
	Password string `json:"password"  validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UserResponse is the public view of a provider user.
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// TokenResponse carries the provider-issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// AuthResponse answers sign-up, login and OAuth callback.
type AuthResponse struct {
	User  UserResponse  `json:"user"`
	Token TokenResponse `json:"token"`
}

// SessionCheckResponse answers a successful session check.
type SessionCheckResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id"`
}

// OAuthLoginResponse carries the provider URL to redirect the browser to.
type OAuthLoginResponse struct {
	AuthURL string `json:"auth_url"`
}

func newAuthResponse(user *gotrue.User, session *gotrue.Session) AuthResponse {
	resp := AuthResponse{
		Token: TokenResponse{TokenType: "bearer"},
	}
	if user == nil && session != nil {
		user = session.User
	}
	if user != nil {
		resp.User = UserResponse{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName(),
		}
		if !user.CreatedAt.IsZero() {
			created := user.CreatedAt
			resp.User.CreatedAt = &created
		}
	}
	if session != nil && session.AccessToken != "" {
		resp.Token.AccessToken = session.AccessToken
		resp.Token.RefreshToken = session.RefreshToken
		resp.Token.ExpiresIn = session.ExpiresIn
	}
	return resp
}
