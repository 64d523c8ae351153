package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate"
	"github.com/bionicotaku/lingo-utils-authgate/config"
	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
	"github.com/bionicotaku/lingo-utils-authgate/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", defaultEnvPath(), "Path to .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "authgate-server: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No key, no service.
	keys, err := authgate.NewKeyProvider(ctx, cfg.KeyConfig(), logger.Named("keys"))
	if err != nil {
		logger.Error("signing key unavailable", zap.Error(err))
		return err
	}
	if runner, ok := keys.(authgate.Runner); ok {
		go func() {
			if err := runner.Run(ctx); err != nil {
				logger.Error("key refresher stopped", zap.Error(err))
			}
		}()
	}

	verifier, err := authgate.NewVerifier(keys, cfg.VerifierConfig())
	if err != nil {
		return err
	}

	sessionOpts := []authgate.SessionOption{authgate.WithLogger(logger.Named("session"))}

	var client *gotrue.Client
	if cfg.ProxyEnabled() {
		client, err = gotrue.New(gotrue.Config{
			URL:         cfg.Supabase.URL,
			APIKey:      cfg.Supabase.Key,
			HTTPTimeout: cfg.Supabase.HTTPTimeout,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("SUPABASE_URL or SUPABASE_KEY not set; provider endpoints disabled")
	}
	if cfg.ConfirmRemoteSession {
		if client == nil {
			return errors.New("CONFIRM_REMOTE_SESSION requires SUPABASE_URL and SUPABASE_KEY")
		}
		sessionOpts = append(sessionOpts, authgate.WithSessionConfirmer(client))
	}
	if cfg.DevBypass {
		logger.Warn("dev bypass enabled; requests without a token are authenticated")
		sessionOpts = append(sessionOpts, authgate.WithDevBypass(authgate.DefaultDevBypassClaims(cfg.JWT.Audience)))
	}

	serverOpts := server.Options{
		Checker:          authgate.NewSessionChecker(verifier, sessionOpts...),
		Logger:           logger.Named("http"),
		CORSOrigins:      cfg.CORSOrigins,
		OAuthProviders:   cfg.OAuth.Providers,
		OAuthRedirectURL: cfg.OAuth.RedirectURL,
	}
	if client != nil {
		serverOpts.Auth = client
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(serverOpts).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authgate listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("environment", cfg.Environment),
			zap.String("key_source", string(cfg.KeySource())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func defaultEnvPath() string {
	if path := os.Getenv("AUTHGATE_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}
