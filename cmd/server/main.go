package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voucherly/redemption-service/internal/adapters/catalog"
	"github.com/voucherly/redemption-service/internal/adapters/postgres"
	"github.com/voucherly/redemption-service/internal/adapters/rediscache"
	"github.com/voucherly/redemption-service/internal/adapters/secrets"
	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/config"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	fraudHandler "github.com/voucherly/redemption-service/internal/handlers/fraud"
	redemptionHandler "github.com/voucherly/redemption-service/internal/handlers/redemption"
	"github.com/voucherly/redemption-service/internal/middleware"
	fraudService "github.com/voucherly/redemption-service/internal/services/fraud"
	redemptionService "github.com/voucherly/redemption-service/internal/services/redemption"
	resolverService "github.com/voucherly/redemption-service/internal/services/resolver"
	pkgmiddleware "github.com/voucherly/redemption-service/pkg/middleware"
	"github.com/voucherly/redemption-service/pkg/observability"
	"github.com/voucherly/redemption-service/pkg/resilience"
	"github.com/voucherly/redemption-service/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting redemption service",
		zap.String("version", "0.1.0"),
	)

	// Initialize database connection pool
	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Ledger connection established",
		zap.String("database", cfg.Database.Database),
	)

	// Initialize cache store
	cache := rediscache.NewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cache.Close()

	// Initialize dependencies
	deps := initDependencies(dbPool, cache, cfg, logger)

	// Shutdown manager: components shut down LIFO
	shutdownMgr := shutdown.NewManager(logger, 30*time.Second)
	shutdownMgr.RegisterCloser("database", closerFunc(func() error { dbPool.Close(); return nil }))
	shutdownMgr.RegisterCloser("cache", cache)
	shutdownMgr.Register("fraud-dispatcher", deps.dispatcher.Stop)

	// HTTP API server
	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      buildRouter(deps, cfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	shutdownMgr.RegisterHTTPServer("api-server", apiServer)

	// Metrics and health server
	healthChecker := observability.NewHealthChecker(dbPool, cache)
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker, logger)
	shutdownMgr.RegisterHTTPServer("metrics-server", metricsServer)

	shutdownMgr.WaitForShutdown()
}

// dependencies holds the wired service graph.
type dependencies struct {
	redemptionHandler *redemptionHandler.Handler
	fraudHandler      *fraudHandler.Handler
	authenticator     *middleware.Authenticator
	idempotencyGate   *middleware.IdempotencyGate
	dispatcher        *fraudService.Dispatcher
}

func initDependencies(dbPool *pgxpool.Pool, cache ports.CacheStore, cfg *config.Config, logger *zap.Logger) *dependencies {
	db := postgres.NewDBExecutor(dbPool)
	redemptionRepo := postgres.NewRedemptionRepository(db)
	fraudRepo := postgres.NewFraudCaseRepository(db)

	// Secret manager backend, then the token verifier from its public key
	secretManager := initSecretManager(cfg, logger)
	publicKeyPEM, err := secretManager.GetSecret(context.Background(), cfg.Auth.TokenPublicKeySecret)
	if err != nil {
		logger.Fatal("Failed to load token public key", zap.Error(err))
	}
	verifier, err := auth.NewVerifier(publicKeyPEM, cfg.Auth.Issuer, cfg.Auth.ClockSkew)
	if err != nil {
		logger.Fatal("Failed to build token verifier", zap.Error(err))
	}

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logger)

	resolver := resolverService.NewService(verifier, cache, logger)

	scorer := fraudService.NewCompositeScorer(
		redemptionRepo,
		fraudRepo,
		catalogClient,
		cfg.Fraud.VelocityWindow,
		cfg.Fraud.VelocityLimit,
		cfg.Fraud.LocationRadiusKm,
		logger,
	)
	fraudSvc := fraudService.NewService(fraudRepo, scorer, cfg.Fraud.CaseThreshold, logger)
	dispatcher := fraudService.NewDispatcher(fraudSvc, cfg.Fraud.QueueSize, cfg.Fraud.Workers, logger)

	redemptionSvc := redemptionService.NewService(
		db,
		redemptionRepo,
		catalogClient,
		catalogClient,
		resolver,
		dispatcher,
		cfg.Catalog.Timeout,
		logger,
	)

	return &dependencies{
		redemptionHandler: redemptionHandler.NewHandler(redemptionSvc, resolver, cfg.Codes.DynamicTTL, cfg.Codes.Length, logger),
		fraudHandler:      fraudHandler.NewHandler(fraudSvc, logger),
		authenticator:     middleware.NewAuthenticator(verifier, logger),
		idempotencyGate:   middleware.NewIdempotencyGate(cache, cfg.Idempotency.TTL, logger),
		dispatcher:        dispatcher,
	}
}

func buildRouter(deps *dependencies, cfg *config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	authed := deps.authenticator.Require
	gated := func(h http.Handler) http.Handler { return authed(deps.idempotencyGate.Wrap(h)) }
	rateLimiter := pkgmiddleware.NewRateLimiter(20, 40)

	// Redemption path. The idempotency gate sits inside auth so the
	// composite key can scope to the authenticated actor.
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, observability.HTTPMetrics(pattern, h))
	}

	handle("POST /redemptions", gated(http.HandlerFunc(deps.redemptionHandler.Redeem)))
	handle("POST /redemptions/sync-offline", gated(http.HandlerFunc(deps.redemptionHandler.SyncOffline)))
	handle("GET /redemptions/{id}", authed(http.HandlerFunc(deps.redemptionHandler.GetRedemption)))
	handle("POST /codes", authed(http.HandlerFunc(deps.redemptionHandler.IssueCode)))

	// Unauthenticated pre-validation for offline clients, rate limited.
	handle("POST /redemptions/validate-offline",
		rateLimiter.Middleware(http.HandlerFunc(deps.redemptionHandler.ValidateOffline)))

	// Fraud review workflow.
	handle("GET /fraud/cases", authed(http.HandlerFunc(deps.fraudHandler.ListCases)))
	handle("GET /fraud/cases/{id}", authed(http.HandlerFunc(deps.fraudHandler.GetCase)))
	handle("PUT /fraud/cases/{id}/review", authed(http.HandlerFunc(deps.fraudHandler.ReviewCase)))
	handle("GET /fraud/statistics", authed(http.HandlerFunc(deps.fraudHandler.Statistics)))

	securityHeaders := middleware.NewSecurityHeaders(cfg.Logger.Development)
	return securityHeaders.Middleware(mux)
}

func initSecretManager(cfg *config.Config, logger *zap.Logger) ports.SecretManager {
	switch cfg.Secrets.Backend {
	case "aws":
		sm, err := secrets.NewAWSSecretsManager(context.Background(), &secrets.AWSConfig{
			Region: cfg.Secrets.AWSRegion,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AWS secrets manager", zap.Error(err))
		}
		return sm
	case "vault":
		sm, err := secrets.NewVaultSecretManager(&secrets.VaultConfig{
			Address:   cfg.Secrets.VaultAddress,
			Token:     cfg.Secrets.VaultToken,
			MountPath: cfg.Secrets.VaultMount,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Vault secrets manager", zap.Error(err))
		}
		return sm
	default:
		return secrets.NewEnvSecretManager()
	}
}

// initLogger initializes the logger
func initLogger(cfg *config.Config) *zap.Logger {
	if cfg.Logger.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool, retrying with
// backoff so the service survives the ledger starting after it.
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	backoff := resilience.ConnectBackoff()
	const maxAttempts = 5

	var pool *pgxpool.Pool
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.NextDelay(attempt - 1)
			logger.Warn("Retrying ledger connection",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				cancel()
				return pool, nil
			}
			pool.Close()
		}
		cancel()
	}
	return nil, fmt.Errorf("connect to ledger after %d attempts: %w", maxAttempts, err)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
