package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate"
	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	envPath := defaultEnvPath()
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Warnf("load %s: %v", envPath, err)
	}

	projectURL := flag.String("project-url", os.Getenv("SUPABASE_URL"), "Supabase project base URL (env SUPABASE_URL)")
	apiKey := flag.String("apikey", os.Getenv("SUPABASE_KEY"), "Supabase anon API key (env SUPABASE_KEY)")
	secret := flag.String("secret", os.Getenv("SUPABASE_JWT_SECRET"), "JWT secret; when empty the JWKS endpoint is used (env SUPABASE_JWT_SECRET)")
	jwksURL := flag.String("jwks-url", os.Getenv("SUPABASE_JWKS_URL"), "JWKS URL override (env SUPABASE_JWKS_URL)")
	issuer := flag.String("issuer", os.Getenv("JWT_ISSUER"), "Expected issuer (env JWT_ISSUER)")
	audience := flag.String("audience", envOr("JWT_AUDIENCE", "authenticated"), "Expected audience (env JWT_AUDIENCE)")
	email := flag.String("email", os.Getenv("SUPABASE_EMAIL"), "User email used to mint a token (env SUPABASE_EMAIL)")
	password := flag.String("password", os.Getenv("SUPABASE_PASSWORD"), "User password used to mint a token (env SUPABASE_PASSWORD)")
	token := flag.String("token", os.Getenv("SUPABASE_JWT"), "JWT to validate; if empty one is minted via password grant (env SUPABASE_JWT)")
	confirm := flag.Bool("confirm", false, "Also confirm the session with the provider")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for provider calls")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var client *gotrue.Client
	if *projectURL != "" && *apiKey != "" {
		var err error
		client, err = gotrue.New(gotrue.Config{URL: *projectURL, APIKey: *apiKey, HTTPTimeout: *timeout})
		if err != nil {
			log.Fatalf("provider client: %v", err)
		}
	}

	if *token == "" {
		if client == nil || *email == "" || *password == "" {
			flag.Usage()
			log.Fatal("project-url, apikey, email and password are required to mint a token")
		}
		provider, err := authgate.NewProvider(authgate.ProviderConfig{Client: client})
		if err != nil {
			log.Fatalf("provider: %v", err)
		}
		tok, err := provider.Token(ctx, authgate.Credentials{Email: *email, Password: *password})
		if err != nil {
			log.Fatalf("failed to fetch access token via provider: %v", err)
		}
		*token = tok
		log.Info("acquired fresh access token via provider")
	}

	keyCfg := authgate.KeyConfig{Source: authgate.KeySourceEnvironment, Secret: *secret}
	if *secret == "" {
		url := *jwksURL
		if url == "" && client != nil {
			url = client.JWKSURL()
		}
		keyCfg = authgate.KeyConfig{
			Source: authgate.KeySourceJWKS,
			JWKS:   authgate.JWKSConfig{URL: url, HTTPTimeout: *timeout},
		}
	}
	keys, err := authgate.NewKeyProvider(ctx, keyCfg, logger)
	if err != nil {
		log.Fatalf("key provider: %v", err)
	}

	verifierCfg := authgate.DefaultVerifierConfig()
	verifierCfg.Issuer = *issuer
	verifierCfg.Audience = *audience
	verifier, err := authgate.NewVerifier(keys, verifierCfg)
	if err != nil {
		log.Fatalf("create verifier: %v", err)
	}

	identity, err := verifier.Verify(ctx, *token)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}
	if *confirm {
		if client == nil {
			log.Fatal("confirm requires project-url and apikey")
		}
		if err := client.ConfirmSession(ctx, *token); err != nil {
			log.Fatalf("session not active: %v", err)
		}
	}

	printIdentity(identity)
}

func printIdentity(identity *authgate.Identity) {
	claims := identity.Claims
	fmt.Println("== Access Token Verified ==")
	fmt.Printf("subject      : %s\n", identity.Subject)
	fmt.Printf("email        : %s\n", identity.Email)
	fmt.Printf("role         : %s\n", identity.Role)
	fmt.Printf("issuer       : %s\n", claims.Issuer)
	fmt.Printf("audience     : %s\n", strings.Join(claims.Audience, ","))
	if !claims.ExpiresAt.IsZero() {
		fmt.Printf("expires_at   : %s\n", claims.ExpiresAt.Format(time.RFC3339))
	}
	if identity.SessionID != "" {
		fmt.Printf("session_id   : %s\n", identity.SessionID)
	}
	if claims.AAL != "" {
		fmt.Printf("aal          : %s\n", claims.AAL)
	}
	if name := identity.FullName(); name != "" {
		fmt.Printf("full_name    : %s\n", name)
	}
}

func defaultEnvPath() string {
	if path := os.Getenv("AUTHGATE_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
