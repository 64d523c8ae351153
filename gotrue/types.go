package gotrue

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignOutScope selects which sessions a sign-out revokes.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
	SignOutOthers SignOutScope = "others"
)

// FullNameField is the user_metadata key holding the display name.
const FullNameField = "full_name"

// User is the provider's user record as returned by its API.
type User struct {
	ID           string          `json:"id"`
	Aud          string          `json:"aud,omitempty"`
	Role         string          `json:"role,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	AppMetadata  map[string]any  `json:"app_metadata,omitempty"`
	UserMetadata json.RawMessage `json:"user_metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// Metadata decodes user_metadata. Some social providers hand back a bare
// string instead of an object; that case yields an empty map.
func (u *User) Metadata() map[string]any {
	out := map[string]any{}
	if u == nil || len(u.UserMetadata) == 0 {
		return out
	}
	if err := json.Unmarshal(u.UserMetadata, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// FullName returns the display name recorded at sign-up, if any.
func (u *User) FullName() string {
	if name, ok := u.Metadata()[FullNameField].(string); ok {
		return name
	}
	return ""
}

// Session is a token pair issued by the provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Expiry returns the absolute expiry of the access token.
func (s *Session) Expiry() time.Time {
	switch {
	case s.ExpiresAt > 0:
		return time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		return time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	default:
		return time.Time{}
	}
}

// AuthResponse pairs a user with the session issued for it. Session is nil
// when the provider withholds one, e.g. pending email confirmation.
type AuthResponse struct {
	User    *User
	Session *Session
}

// AuthorizeOptions customizes the social login URL.
type AuthorizeOptions struct {
	RedirectTo          string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// decodeAuthResponse handles both shapes the sign-up endpoint returns: a
// session with an embedded user, or a bare user.
func decodeAuthResponse(raw json.RawMessage) (*AuthResponse, error) {
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("gotrue: decode auth response: %w", err)
	}
	if session.AccessToken != "" {
		if session.User == nil {
			return nil, fmt.Errorf("gotrue: session response without user")
		}
		return &AuthResponse{User: session.User, Session: &session}, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("gotrue: decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("gotrue: could not create user")
	}
	return &AuthResponse{User: &user}, nil
}
