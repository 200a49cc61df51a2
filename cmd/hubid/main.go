package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cksportal/hubid/api"
	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/config"
	"github.com/cksportal/hubid/core/flow"
	"github.com/cksportal/hubid/core/health"
	"github.com/cksportal/hubid/core/identity"
	"github.com/cksportal/hubid/core/issuer"
	"github.com/cksportal/hubid/core/logger"
	"github.com/cksportal/hubid/core/registry"
	"github.com/cksportal/hubid/core/sequence"
	"github.com/cksportal/hubid/core/session"
	"github.com/cksportal/hubid/core/telemetry"
	"github.com/cksportal/hubid/kgorm"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting hub identity service",
		zap.Int("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
	)

	repo, err := kgorm.NewStorage(cfg.DBType, cfg.DSN, kgorm.Options{SkipMigrate: cfg.SkipAutoMigrate})
	if err != nil {
		logger.Log.Fatal("failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	policy, err := cfg.RolePolicy()
	if err != nil {
		logger.Log.Fatal("invalid ADMIN_ROLE_POLICY", zap.Error(err))
	}
	reg := registry.Default()
	accounts := kgorm.NewAccountRepository(repo.DB(), reg,
		kgorm.WithRolePolicy(policy),
		kgorm.WithLogger(logger.Log),
	)
	allocator := kgorm.NewSequenceAllocator(repo.DB(), sequence.NewAllowList(reg.SequenceNames()...))
	generator := sequence.NewGenerator(reg, allocator)

	provider, err := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "hubid",
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   1.0,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		logger.Log.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	auditLog := audit.NewLogger(kgorm.NewAuditRepository(repo.DB()), audit.Hooks{})

	iss := newIssuer(cfg)
	verifier, err := newVerifier(context.Background(), cfg)
	if err != nil {
		logger.Log.Fatal("failed to initialize session verifier", zap.Error(err))
	}

	checks := health.NewManager(version, health.WithTimeout(3*time.Second))
	checks.Register(health.NewPingChecker("database", repo.Ping, true))

	var limiter flow.RateLimiter = flow.NewMemoryRateLimiter()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		defer client.Close()
		limiter = flow.NewRedisRateLimiter(client, "")
		checks.Register(health.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, false))
	}

	flowOpts := []flow.Option{
		flow.WithLogger(logger.Log),
		flow.WithAudit(auditLog),
		flow.WithRecorder(provider),
	}

	h := api.NewHandler(api.Config{
		Identity:     identity.NewService(generator, accounts),
		Recovery:     flow.NewRecoveryManager(reg, accounts, iss, flowOpts...),
		Provisioning: flow.NewProvisioningManager(generator, accounts, iss, flowOpts...),
		Verifier:     verifier,
		ForgotPasswordGuard: flow.NewRateLimitGuard(limiter, flow.RateLimitConfig{
			Limit:  cfg.ForgotPasswordLimit,
			Window: cfg.ForgotPasswordWindow,
			Hooks: flow.RateLimitHooks{
				OnError: func(ctx context.Context, err error, info *flow.RateLimitInfo) error {
					logger.Log.Warn("rate limiter unavailable", zap.String("key", info.Key), zap.Error(err))
					return err
				},
			},
		}),
		Audit:   auditLog,
		Metrics: provider,
		Logger:  logger.Log,
	})

	trusted, err := cfg.TrustedProxyRanges()
	if err != nil {
		logger.Log.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = api.NewIPExtractor(trusted)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	checks.Mount(e)
	if provider.Enabled() {
		e.GET("/metrics", echo.WrapHandler(provider.MetricsHandler()))
	}
	h.RegisterRoutes(e.Group("/api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown failed", zap.Error(err))
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("telemetry shutdown failed", zap.Error(err))
	}
}

// newIssuer falls back to an in-process issuer when no API is configured,
// which is only useful for local development.
func newIssuer(cfg *config.Config) issuer.Issuer {
	if cfg.IssuerURL == "" {
		logger.Log.Warn("ISSUER_URL not set, using in-memory issuer")
		return issuer.NewMemoryIssuer()
	}
	return issuer.NewHTTPClient(issuer.HTTPConfig{
		BaseURL:   cfg.IssuerURL,
		SecretKey: cfg.IssuerSecretKey,
	})
}

func newVerifier(ctx context.Context, cfg *config.Config) (api.TokenVerifier, error) {
	switch {
	case cfg.SessionJWKSURL != "":
		return session.NewJWKSVerifier(ctx, cfg.SessionJWKSURL, cfg.SessionIssuer, 5*time.Second)
	case cfg.SessionJWTKey != "":
		return session.NewRS256Verifier([]byte(cfg.SessionJWTKey))
	case cfg.SessionJWTSecret != "":
		return session.NewHS256Verifier(cfg.SessionJWTSecret)
	default:
		return nil, errors.New("one of SESSION_JWKS_URL, SESSION_JWT_KEY or SESSION_JWT_SECRET is required")
	}
}
