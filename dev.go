package authgate

// DevBypassClaims holds attributes used when issuing a synthetic identity in dev mode.
type DevBypassClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Email    string
	Role     string
}

// ToIdentity converts the dev bypass configuration into an identity.
func (d DevBypassClaims) ToIdentity() *Identity {
	claims := &Claims{
		Subject:  d.Subject,
		Issuer:   d.Issuer,
		Audience: append([]string(nil), d.Audience...),
		Email:    d.Email,
		Role:     d.Role,
	}
	return identityFromClaims(claims)
}

// DefaultDevBypassClaims returns a baseline identity suitable for local development.
func DefaultDevBypassClaims(audience string) DevBypassClaims {
	aud := audience
	if aud == "" {
		aud = defaultAudience
	}
	return DevBypassClaims{
		Subject:  "dev-bypass",
		Issuer:   "authgate.dev",
		Audience: []string{aud},
		Role:     "authenticated",
	}
}
