package authgate

import (
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims represents the verified contents of a provider access token.
// Registered and well-known claims get named fields; everything else
// lands in CustomClaims.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	JWTID     string

	Email       string
	Phone       string
	Role        string
	SessionID   string
	AAL         string
	IsAnonymous bool

	AppMetadata  map[string]any
	UserMetadata map[string]any
	CustomClaims map[string]any
}

// Identity is the authenticated principal derived from a verified token.
type Identity struct {
	Subject   string
	Email     string
	Role      string
	SessionID string
	Claims    *Claims
}

// FullName returns the display name stored in user metadata, if any.
func (i *Identity) FullName() string {
	if i == nil || i.Claims == nil {
		return ""
	}
	if name, ok := i.Claims.UserMetadata["full_name"].(string); ok {
		return name
	}
	return ""
}

func identityFromClaims(claims *Claims) *Identity {
	return &Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		Claims:    claims,
	}
}

func extractClaims(token jwt.Token) *Claims {
	private := token.PrivateClaims()
	var audience []string
	if audList := token.Audience(); len(audList) > 0 {
		audience = append([]string(nil), audList...)
	}
	claims := &Claims{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		Audience:  audience,
		ExpiresAt: token.Expiration(),
		NotBefore: token.NotBefore(),
		IssuedAt:  token.IssuedAt(),
		JWTID:     token.JwtID(),
	}

	if len(private) > 0 {
		claims.CustomClaims = make(map[string]any, len(private))
		for k, v := range private {
			claims.CustomClaims[k] = v
		}
	}
	populateKnownClaims(claims)
	return claims
}

func populateKnownClaims(claims *Claims) {
	if claims.CustomClaims == nil {
		return
	}
	claims.Email = strings.ToLower(stringClaim(claims.CustomClaims, "email"))
	claims.Phone = stringClaim(claims.CustomClaims, "phone")
	claims.Role = stringClaim(claims.CustomClaims, "role")
	claims.SessionID = stringClaim(claims.CustomClaims, "session_id")
	claims.AAL = stringClaim(claims.CustomClaims, "aal")
	if anon, ok := claims.CustomClaims["is_anonymous"].(bool); ok {
		claims.IsAnonymous = anon
	}
	if appMeta, ok := claims.CustomClaims["app_metadata"]; ok {
		if m := toMap(appMeta); m != nil {
			claims.AppMetadata = m
		}
	}
	// Some providers ship user_metadata as a JSON string; those are ignored.
	if userMeta, ok := claims.CustomClaims["user_metadata"]; ok {
		if m := toMap(userMeta); m != nil {
			claims.UserMetadata = m
		}
	}
}

func stringClaim(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func toMap(value any) map[string]any {
	switch m := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	default:
		return nil
	}
}
