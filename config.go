package authgate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

const (
	defaultClockSkew       = 30 * time.Second
	defaultMinRefresh      = 5 * time.Minute
	defaultHTTPTimeout     = 5 * time.Second
	defaultRefreshInterval = 10 * time.Minute
	defaultAudience        = "authenticated"
	defaultSecretID        = "SUPABASE_JWT_SECRET"
	defaultSecretVersion   = "latest"
)

// KeySource selects where verification key material comes from.
type KeySource string

const (
	KeySourceEnvironment   KeySource = "environment"
	KeySourceSecretManager KeySource = "secret-manager"
	KeySourceFile          KeySource = "file"
	KeySourceJWKS          KeySource = "jwks"
)

// KeyConfig describes how the key provider obtains its material.
type KeyConfig struct {
	Source KeySource
	// Secret is the shared HMAC secret for the environment source.
	Secret string
	// Algorithm applies to HMAC secrets; defaults to HS256.
	Algorithm     string
	FilePath      string
	SecretManager SecretManagerConfig
	JWKS          JWKSConfig
}

// SecretManagerConfig locates the signing secret in Google Secret Manager.
type SecretManagerConfig struct {
	ProjectID       string
	SecretID        string
	Version         string
	RefreshInterval time.Duration
	// Accessor overrides the Secret Manager client, mostly for tests.
	Accessor SecretAccessor
}

// JWKSConfig points at a remote key set published by the provider.
type JWKSConfig struct {
	URL         string
	MinRefresh  time.Duration
	HTTPTimeout time.Duration
}

// VerifierConfig holds the claim policy applied after the signature check.
type VerifierConfig struct {
	// Issuer, when set, must equal the iss claim.
	Issuer string
	// Audience, when set, must be contained in the aud claim.
	Audience string
	// ClockSkew is the tolerance applied to exp, nbf and iat.
	ClockSkew time.Duration
	// RequireExpiry rejects tokens without an exp claim.
	RequireExpiry bool
	// RequiredClaims lists claim names that must be present besides sub.
	RequiredClaims  []string
	AllowedSubjects []string
	// Now overrides the verification clock.
	Now func() time.Time
}

// DefaultVerifierConfig mirrors what the provider issues for signed-in users.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Audience:      defaultAudience,
		ClockSkew:     defaultClockSkew,
		RequireExpiry: true,
	}
}

func (c *VerifierConfig) normalize() {
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	required := c.RequiredClaims[:0:0]
	for _, name := range c.RequiredClaims {
		if name = strings.TrimSpace(name); name != "" {
			required = append(required, name)
		}
	}
	c.RequiredClaims = required
}

func (c *KeyConfig) normalize() {
	if c.Source == "" {
		c.Source = KeySourceEnvironment
	}
	if c.Algorithm == "" {
		c.Algorithm = jwa.HS256.String()
	}
	if c.SecretManager.SecretID == "" {
		c.SecretManager.SecretID = defaultSecretID
	}
	if c.SecretManager.Version == "" {
		c.SecretManager.Version = defaultSecretVersion
	}
	if c.SecretManager.RefreshInterval <= 0 {
		c.SecretManager.RefreshInterval = defaultRefreshInterval
	}
	if c.JWKS.MinRefresh <= 0 {
		c.JWKS.MinRefresh = defaultMinRefresh
	}
	if c.JWKS.HTTPTimeout <= 0 {
		c.JWKS.HTTPTimeout = defaultHTTPTimeout
	}
}

// validate ensures the key configuration can produce key material.
func (c KeyConfig) validate() error {
	if _, err := hmacAlgorithm(c.Algorithm); err != nil {
		return err
	}
	switch c.Source {
	case KeySourceEnvironment:
		if strings.TrimSpace(c.Secret) == "" {
			return errors.New("signing secret is required")
		}
	case KeySourceSecretManager:
		if c.SecretManager.ProjectID == "" && c.SecretManager.Accessor == nil {
			return errors.New("project id is required for secret manager")
		}
	case KeySourceFile:
		if c.FilePath == "" {
			return errors.New("key file path is required")
		}
	case KeySourceJWKS:
		if c.JWKS.URL == "" {
			return errors.New("jwks url is required")
		}
	default:
		return fmt.Errorf("unknown key source %q", c.Source)
	}
	return nil
}

func hmacAlgorithm(name string) (jwa.SignatureAlgorithm, error) {
	if name == "" {
		return jwa.HS256, nil
	}
	switch alg := jwa.SignatureAlgorithm(strings.ToUpper(name)); alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported hmac algorithm %q", name)
	}
}
