package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/background"
	"github.com/BradenHooton/authgate/internal/config"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	"github.com/BradenHooton/authgate/migrations"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	if err := db.Migrate(startupCtx, migrations.FS); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	userRepo := repositories.NewUserRepository(db)

	// Token and code primitives
	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	if err != nil {
		logger.Error("failed to initialize token manager", slog.Any("error", err))
		os.Exit(1)
	}
	codeManager := auth.NewOneTimeCodeManager()
	csrfGuard := auth.NewCSRFGuard()
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email service
	sender, err := services.NewSESEmailSender(startupCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	mailer := services.NewAccountMailer(sender, cfg.Email.AppName, logger)
	recaptcha := services.NewRecaptchaVerifier(cfg.Recaptcha.SecretKey, cfg.Recaptcha.MinScore, logger)

	// Initialize services
	authService, err := services.NewAuthService(
		userRepo,
		tokenManager,
		codeManager,
		mailer,
		recaptcha,
		timingDelay,
		cfg.Auth.BcryptCost,
		logger,
		auditLogger,
	)
	if err != nil {
		logger.Error("failed to initialize auth service", slog.Any("error", err))
		os.Exit(1)
	}
	adminService := services.NewAdminService(userRepo, cfg.Auth.BcryptCost, logger, auditLogger)
	googleProvider := services.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)
	oauthService := services.NewOAuthService(googleProvider, userRepo, tokenManager, logger, auditLogger)

	// Bootstrap the admin account if configured
	created, err := adminService.EnsureAdmin(startupCtx, cfg.Admin.Email, cfg.Admin.Password)
	switch {
	case err != nil:
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	case created:
		logger.Info("admin user created")
	}
	cancelStartup()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	clientIPKey := pkghttp.ClientIPKey(ipConfig)

	// Process-local fixed-window limiter, swept in the background
	limiter := services.NewFixedWindowLimiter(services.RateLimitConfig{
		Limit:  cfg.RateLimit.Requests,
		Window: cfg.RateLimit.Window,
	}, logger)
	cleanupManager := background.NewCleanupManager(logger, cfg.RateLimit.SweepInterval)
	cleanupManager.Register("rate_limiter", limiter)

	// Initialize handlers
	csrfCookie := auth.CookieConfig{
		Secure:   cfg.Server.IsProduction(),
		SameSite: "strict",
	}
	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, ipConfig, logger),
		Admin:  handlers.NewAdminHandler(adminService, logger),
		OAuth:  handlers.NewOAuthHandler(oauthService, googleProvider, cfg.Server.FrontendURL, ipConfig, logger),
		CSRF:   handlers.NewCSRFHandler(csrfGuard, csrfCookie, logger),
		Health: handlers.Health(db, logger),
	}
	g := routes.Guards{
		Tokens:     tokenManager,
		CSRF:       csrfGuard,
		AdminLimit: middlewareCustom.RateLimitByIP(cfg.RateLimit.AdminRequestsPerMinute, clientIPKey),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.Server.IsProduction() {
		router.Use(middlewareCustom.HTTPSRedirect(ipConfig))
	}
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env, IPConfig: ipConfig}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.RateLimit(limiter, clientIPKey, logger))

	// Register routes
	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, h, g, logger)
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
