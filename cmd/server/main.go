package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/clinicauth/internal/crypto"
	"github.com/iudanet/clinicauth/internal/server/config"
	"github.com/iudanet/clinicauth/internal/server/gateway"
	"github.com/iudanet/clinicauth/internal/server/gateway/fixture"
	"github.com/iudanet/clinicauth/internal/server/gateway/onec"
	"github.com/iudanet/clinicauth/internal/server/handlers"
	"github.com/iudanet/clinicauth/internal/server/login"
	"github.com/iudanet/clinicauth/internal/server/metrics"
	"github.com/iudanet/clinicauth/internal/server/middleware"
	"github.com/iudanet/clinicauth/internal/server/otp"
	"github.com/iudanet/clinicauth/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Parse(os.Args[1:], os.LookupEnv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// newLogger JSON в production, текст в разработке
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	m := metrics.New()

	gw, err := newGateway(cfg, logger, m)
	if err != nil {
		return err
	}

	hasher := crypto.NewHasher(cfg.BcryptCost)
	issuer := otp.NewIssuer(store, hasher, newSender(cfg, logger), otp.Config{
		TTL:            cfg.OTPTTL,
		MaxAttempts:    cfg.OTPAttempts,
		ResendCooldown: cfg.ResendCooldown,
	}, logger)

	service := login.NewService(store, store, gw, issuer, hasher, login.Config{
		SessionTTL:       cfg.SessionTTL,
		ExpiredRetention: cfg.ExpiredRetention,
		MinPasswordLen:   cfg.MinPasswordLen,
		Production:       cfg.Production(),
	}, logger)
	service.SetRecorder(m)

	handlers.Version = Version

	mux := http.NewServeMux()
	handlers.NewAuthHandler(logger, service).Routes(mux)
	mux.HandleFunc("GET /api/health", handlers.NewHealthHandler(logger, store).Health)
	mux.Handle("GET /metrics", m.Handler())

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute, logger)
	defer limiter.Stop()

	var handler http.Handler = mux
	handler = limiter.Middleware("/api/auth/login")(handler)
	handler = middleware.Metrics(m)(handler)
	handler = middleware.Logging(logger, "/metrics", "/api/health")(handler)
	handler = middleware.Recovery(logger)(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Onec.Timeout*3 + 15*time.Second,
		IdleTimeout:       time.Minute,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go service.RunJanitor(janitorCtx, cfg.JanitorInterval)

	errC := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("env", cfg.Environment),
			slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newGateway выбирает источник профилей: 1С, YAML фикстуры или заглушку для разработки
func newGateway(cfg *config.Config, logger *slog.Logger, observer gateway.Observer) (gateway.ProfileGateway, error) {
	switch {
	case cfg.Onec.BaseURL != "":
		logger.Info("using 1C gateway", slog.String("url", cfg.Onec.BaseURL))
		return onec.New(onec.Config{
			BaseURL:  cfg.Onec.BaseURL,
			User:     cfg.Onec.User,
			Password: cfg.Onec.Password,
			Timeout:  cfg.Onec.Timeout,
		}, onec.NewTokenCache(onec.DefaultRefreshBefore), logger, observer), nil
	case cfg.FixturePath != "":
		gw, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixtures: %w", err)
		}
		logger.Info("using fixture gateway", slog.String("path", cfg.FixturePath))
		return gw, nil
	default:
		logger.Warn("1C is not configured, every phone is accepted")
		return fixture.NewPermissive(), nil
	}
}

// newSender Twilio, если заданы учетные данные, иначе запись кода в лог
func newSender(cfg *config.Config, logger *slog.Logger) otp.Sender {
	if cfg.Twilio.Enabled() {
		return otp.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, logger)
	}
	return otp.NewLogSender(logger, !cfg.Production())
}

func printVersion() {
	fmt.Printf("Clinic Portal Auth Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
