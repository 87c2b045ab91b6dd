package di

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/ratelimit"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Profile:            "local",
		DatabaseDriver:     "sqlite",
		DatabaseURL:        "file:di_test?mode=memory&cache=shared",
		RateLimitBackend:   "local",
		RateLimitKeyPrefix: "test:rl",
		EncryptionSecret:   "abcdefghijklmnopqrstuvwxyz123456",
		TokenPepper:        "pepper-pepper-pepper-pepper-1234",
		JWTSecret:          "jwt-secret-jwt-secret-jwt-secret",
		BcryptCost:         4,
		SessionTTL:         time.Hour,
		TwoFactorTicketTTL: 5 * time.Minute,
		EmailWorkers:       1,
		EmailQueueSize:     4,
		SweepInterval:      time.Minute,
	}
}

func TestProvideLimiterBackends(t *testing.T) {
	cfg := testConfig(t)
	limiter, err := provideLimiter(cfg, nil)
	if err != nil {
		t.Fatalf("local limiter: %v", err)
	}
	if _, ok := limiter.(*ratelimit.LocalFixedWindowLimiter); !ok {
		t.Fatalf("expected local limiter, got %T", limiter)
	}

	cfg.RateLimitBackend = "redis"
	if _, err := provideLimiter(cfg, nil); err == nil {
		t.Fatal("expected error for redis backend without client")
	}

	server := miniredis.RunT(t)
	cfg.RedisAddr = server.Addr()
	client, cleanup, err := provideRedis(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(cleanup)
	limiter, err = provideLimiter(cfg, client)
	if err != nil {
		t.Fatalf("redis limiter: %v", err)
	}
	if _, ok := limiter.(*ratelimit.RedisFixedWindowLimiter); !ok {
		t.Fatalf("expected redis limiter, got %T", limiter)
	}
	if _, ok := provideSessionMissCache(client).(*service.RedisSessionMissCache); !ok {
		t.Fatal("expected redis-backed miss cache when redis is configured")
	}
}

func TestInitializeMaintenanceBuildsSweeper(t *testing.T) {
	m, cleanup, err := InitializeMaintenance(testConfig(t))
	if err != nil {
		t.Fatalf("initialize maintenance: %v", err)
	}
	t.Cleanup(cleanup)

	results := m.Sweeper.RunOnce(t.Context())
	if len(results) != 2 {
		t.Fatalf("expected token and session sweeps, got %+v", results)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("sweep %s failed: %v", r.Name, r.Err)
		}
	}
}
