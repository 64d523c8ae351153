// Package config loads the gateway's runtime configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/bionicotaku/lingo-utils-authgate"
)

// Config is the complete server configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR"   envDefault:":8080"`
	Debug       bool   `env:"DEBUG"       envDefault:"false"`
	Testing     bool   `env:"TESTING"     envDefault:"false"`

	Supabase SupabaseConfig
	Keys     KeysConfig
	JWT      JWTConfig
	OAuth    OAuthConfig
	Log      LogConfig

	CORSOrigins          []string `env:"CORS_ORIGINS"           envSeparator:"," envDefault:"http://localhost:3000"`
	ConfirmRemoteSession bool     `env:"CONFIRM_REMOTE_SESSION" envDefault:"false"`
	DevBypass            bool     `env:"DEV_BYPASS"             envDefault:"false"`
}

// SupabaseConfig locates the hosted auth provider.
type SupabaseConfig struct {
	URL         string        `env:"SUPABASE_URL"`
	Key         string        `env:"SUPABASE_KEY"`
	JWTSecret   string        `env:"SUPABASE_JWT_SECRET"`
	JWKSURL     string        `env:"SUPABASE_JWKS_URL"`
	HTTPTimeout time.Duration `env:"SUPABASE_HTTP_TIMEOUT" envDefault:"10s"`
}

// KeysConfig selects the key source for token verification.
type KeysConfig struct {
	Source          string        `env:"AUTHGATE_KEY_SOURCE"  envDefault:"environment"`
	UseGSM          bool          `env:"USE_GSM"              envDefault:"false"`
	ProjectID       string        `env:"GCP_PROJECT_ID"`
	SecretID        string        `env:"GSM_SECRET_ID"        envDefault:"SUPABASE_JWT_SECRET"`
	SecretVersion   string        `env:"GSM_SECRET_VERSION"   envDefault:"latest"`
	RefreshInterval time.Duration `env:"KEY_REFRESH_INTERVAL" envDefault:"10m"`
	FilePath        string        `env:"AUTHGATE_KEY_FILE"`
	Algorithm       string        `env:"JWT_ALGORITHM"        envDefault:"HS256"`
}

// JWTConfig holds the claim policy.
type JWTConfig struct {
	Audience       string        `env:"JWT_AUDIENCE"        envDefault:"authenticated"`
	Issuer         string        `env:"JWT_ISSUER"`
	ClockSkew      time.Duration `env:"JWT_CLOCK_SKEW"      envDefault:"30s"`
	RequiredClaims []string      `env:"JWT_REQUIRED_CLAIMS" envSeparator:","`
}

// OAuthConfig controls social login.
type OAuthConfig struct {
	Providers   []string `env:"OAUTH_PROVIDERS"    envSeparator:"," envDefault:"google"`
	RedirectURL string   `env:"OAUTH_REDIRECT_URL"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env files (never overriding variables already set) and then
// parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		// Missing files are fine; the real environment may carry everything.
		_ = godotenv.Load(path)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// KeySource resolves the effective key source. USE_GSM wins over
// AUTHGATE_KEY_SOURCE, except in testing mode which always reads the
// environment.
func (c *Config) KeySource() authgate.KeySource {
	switch {
	case c.Testing:
		return authgate.KeySourceEnvironment
	case c.Keys.UseGSM:
		return authgate.KeySourceSecretManager
	default:
		return authgate.KeySource(strings.ToLower(strings.TrimSpace(c.Keys.Source)))
	}
}

// Validate checks cross-field requirements env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.KeySource() {
	case authgate.KeySourceEnvironment:
		if c.Supabase.JWTSecret == "" {
			errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required for the environment key source"))
		}
	case authgate.KeySourceSecretManager:
		if c.Keys.ProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is required when USE_GSM is set"))
		}
	case authgate.KeySourceFile:
		if c.Keys.FilePath == "" {
			errs = append(errs, errors.New("AUTHGATE_KEY_FILE is required for the file key source"))
		}
	case authgate.KeySourceJWKS:
		if c.Supabase.JWKSURL == "" && c.Supabase.URL == "" {
			errs = append(errs, errors.New("SUPABASE_JWKS_URL or SUPABASE_URL is required for the jwks key source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTHGATE_KEY_SOURCE %q", c.Keys.Source))
	}
	if c.DevBypass && c.IsProduction() {
		errs = append(errs, errors.New("DEV_BYPASS cannot be enabled in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ProxyEnabled reports whether the provider endpoints can be served.
func (c *Config) ProxyEnabled() bool {
	return c.Supabase.URL != "" && c.Supabase.Key != ""
}

// KeyConfig converts the environment into key provider settings.
func (c *Config) KeyConfig() authgate.KeyConfig {
	jwksURL := c.Supabase.JWKSURL
	if jwksURL == "" && c.Supabase.URL != "" {
		jwksURL = strings.TrimRight(c.Supabase.URL, "/") + "/auth/v1/.well-known/jwks.json"
	}
	return authgate.KeyConfig{
		Source:    c.KeySource(),
		Secret:    c.Supabase.JWTSecret,
		Algorithm: c.Keys.Algorithm,
		FilePath:  c.Keys.FilePath,
		SecretManager: authgate.SecretManagerConfig{
			ProjectID:       c.Keys.ProjectID,
			SecretID:        c.Keys.SecretID,
			Version:         c.Keys.SecretVersion,
			RefreshInterval: c.Keys.RefreshInterval,
		},
		JWKS: authgate.JWKSConfig{
			URL:         jwksURL,
			HTTPTimeout: c.Supabase.HTTPTimeout,
		},
	}
}

// VerifierConfig converts the environment into the claim policy.
func (c *Config) VerifierConfig() authgate.VerifierConfig {
	cfg := authgate.DefaultVerifierConfig()
	cfg.Audience = c.JWT.Audience
	cfg.Issuer = c.JWT.Issuer
	cfg.ClockSkew = c.JWT.ClockSkew
	cfg.RequiredClaims = append([]string(nil), c.JWT.RequiredClaims...)
	return cfg
}
