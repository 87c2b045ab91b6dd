package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-security-service/internal/app"
	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/database"
	"github.com/sandeepkv93/account-security-service/internal/health"
	"github.com/sandeepkv93/account-security-service/internal/http/handler"
	"github.com/sandeepkv93/account-security-service/internal/http/router"
	"github.com/sandeepkv93/account-security-service/internal/observability"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

func provideLogger(ctx context.Context, cfg *config.Config) (*slog.Logger, *sdklog.LoggerProvider, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, lp, nil
}

func provideObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDB(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Options{
		Driver:       cfg.DatabaseDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = database.Close(db) }
	if cfg.IsLocal() {
		if err := database.Migrate(db); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return db, cleanup, nil
}

// provideRedis returns nil when no address is configured.
func provideRedis(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func provideCryptoBox(cfg *config.Config) (*security.CryptoBox, error) {
	return security.NewCryptoBox(cfg.EncryptionSecret)
}

func providePasswordHasher(cfg *config.Config) (*security.PasswordHasher, error) {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func provideLimiter(cfg *config.Config, client redis.UniversalClient) (ratelimit.Limiter, error) {
	if cfg.RateLimitBackend == "redis" {
		if client == nil {
			return nil, fmt.Errorf("redis rate limit backend requires REDIS_ADDR")
		}
		return ratelimit.NewRedisFixedWindowLimiter(client, cfg.RateLimitKeyPrefix), nil
	}
	return ratelimit.NewLocalFixedWindowLimiter(), nil
}

func provideSessionMissCache(client redis.UniversalClient) service.SessionMissCache {
	if client != nil {
		return service.NewRedisSessionMissCache(client, "account_security:session_miss")
	}
	return service.NewInMemorySessionMissCache()
}

func provideTokenVault(repo repository.SecurityTokenRepository, cfg *config.Config) *service.TokenVault {
	return service.NewTokenVault(repo, cfg.TokenPepper)
}

func provideTwoFactorEngine(box *security.CryptoBox, cfg *config.Config) *service.TwoFactorEngine {
	return service.NewTwoFactorEngine(box, cfg.TOTPIssuer)
}

func provideSessionRegistry(repo repository.SessionRepository, misses service.SessionMissCache, cfg *config.Config) *service.SessionRegistry {
	return service.NewSessionRegistry(repo, misses, cfg.TokenPepper, cfg.SessionTTL)
}

func provideEmailDispatcher(cfg *config.Config, logger *slog.Logger) *service.EmailDispatcher {
	return service.NewEmailDispatcher(service.NewLogEmailSender(logger), cfg.EmailWorkers, cfg.EmailQueueSize, logger)
}

func provideAccountService(
	users repository.UserRepository,
	creds repository.CredentialRepository,
	vault *service.TokenVault,
	twoFactor *service.TwoFactorEngine,
	sessions *service.SessionRegistry,
	passwords service.PasswordHasher,
	mailer service.EmailSender,
	cfg *config.Config,
) *service.AccountService {
	return service.NewAccountService(users, creds, vault, twoFactor, sessions, passwords, mailer, cfg.PublicBaseURL)
}

func provideAuthenticationCoordinator(
	users repository.UserRepository,
	creds repository.CredentialRepository,
	passwords service.PasswordVerifier,
	twoFactor *service.TwoFactorEngine,
	sessions *service.SessionRegistry,
	limiter ratelimit.Limiter,
	tickets service.ChallengeSigner,
	cfg *config.Config,
) *service.AuthenticationCoordinator {
	return service.NewAuthenticationCoordinator(users, creds, passwords, twoFactor, sessions, limiter, tickets, cfg.TwoFactorTicketTTL)
}

func provideCookieOptions(cfg *config.Config) security.CookieOptions {
	return security.CookieOptions{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}
}

func provideReadiness(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.DBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.RedisChecker(client))
	}
	return health.NewProbeRunner(cfg.ReadinessTimeout, cfg.ReadinessCacheTTL, checkers...)
}

func provideRouter(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	sessions service.SessionResolver,
	limiter ratelimit.Limiter,
	readiness *health.ProbeRunner,
	cookies security.CookieOptions,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:       authHandler,
		UserHandler:       userHandler,
		Sessions:          sessions,
		Cookies:           cookies,
		TrustedProxies:    cfg.TrustedProxies,
		Limiter:           limiter,
		RateLimitFailOpen: cfg.RateLimitFailOpen,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.EnableOTelHTTP,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func provideSweeper(
	cfg *config.Config,
	vault *service.TokenVault,
	sessions *service.SessionRegistry,
	limiter ratelimit.Limiter,
	misses service.SessionMissCache,
) *app.Sweeper {
	tasks := []app.SweepTask{
		{Name: "security_tokens", Run: vault.Sweep},
		{Name: "sessions", Run: sessions.Sweep},
	}
	if local, ok := limiter.(*ratelimit.LocalFixedWindowLimiter); ok {
		tasks = append(tasks, app.PruneTask("rate_limit_windows", local.Prune))
	}
	if mem, ok := misses.(*service.InMemorySessionMissCache); ok {
		tasks = append(tasks, app.PruneTask("session_misses", mem.Prune))
	}
	return app.NewSweeper(cfg.SweepInterval, tasks...)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	sweeper *app.Sweeper,
	mailer *service.EmailDispatcher,
) *app.App {
	return app.New(cfg, logger, server, runtime, sweeper, mailer)
}

// Maintenance is the object graph for one-shot commands that touch storage
// but do not serve traffic.
type Maintenance struct {
	DB      *gorm.DB
	Sweeper *app.Sweeper
}

func provideMaintenance(db *gorm.DB, vault *service.TokenVault, sessions *service.SessionRegistry) *Maintenance {
	return &Maintenance{
		DB: db,
		Sweeper: app.NewSweeper(0,
			app.SweepTask{Name: "security_tokens", Run: vault.Sweep},
			app.SweepTask{Name: "sessions", Run: sessions.Sweep},
		),
	}
}
