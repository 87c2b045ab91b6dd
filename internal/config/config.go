package config

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Profile  string `env:"APP_PROFILE" envDefault:"local"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"file:account_security.db?_foreign_keys=on"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RateLimitBackend   string `env:"RATE_LIMIT_BACKEND" envDefault:"local"`
	RateLimitFailOpen  bool   `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"false"`
	RateLimitKeyPrefix string `env:"RATE_LIMIT_KEY_PREFIX" envDefault:"account_security:rl"`
	// Forwarded-for headers are honoured only from peers inside these ranges.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`

	EncryptionSecret string `env:"ENCRYPTION_SECRET"`
	TokenPepper      string `env:"TOKEN_PEPPER"`
	JWTSecret        string `env:"JWT_SECRET"`
	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"account-security-service"`
	JWTAudience      string `env:"JWT_AUDIENCE" envDefault:"account-security-clients"`
	BcryptCost       int    `env:"BCRYPT_COST" envDefault:"12"`

	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	TwoFactorTicketTTL time.Duration `env:"TWO_FACTOR_TICKET_TTL" envDefault:"5m"`
	CookieSecure       bool          `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain       string        `env:"COOKIE_DOMAIN"`
	TOTPIssuer         string        `env:"TOTP_ISSUER" envDefault:"Account Security"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	EmailWorkers       int           `env:"EMAIL_WORKERS" envDefault:"2"`
	EmailQueueSize     int           `env:"EMAIL_QUEUE_SIZE" envDefault:"256"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout  time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadinessTimeout   time.Duration `env:"READINESS_TIMEOUT" envDefault:"2s"`
	ReadinessCacheTTL  time.Duration `env:"READINESS_CACHE_TTL" envDefault:"2s"`
	EnableOTelHTTP     bool          `env:"OTEL_HTTP_ENABLED" envDefault:"false"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"account-security-service"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT" envDefault:"local"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"15s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`
}

const minSecretLength = 32

// ValidationError lists every rule a loaded Config broke.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	return errors.Join(e.Problems...).Error()
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		err = fmt.Errorf("parse env: %w", err)
		recordConfigLoad(context.Background(), cfg.Profile, err)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigLoad(context.Background(), cfg.Profile, err)
		return nil, err
	}
	recordConfigLoad(context.Background(), cfg.Profile, nil)
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.EncryptionSecret) < minSecretLength {
		errs = append(errs, errors.New("ENCRYPTION_SECRET must be at least 32 bytes"))
	}
	if len(c.TokenPepper) < minSecretLength {
		errs = append(errs, errors.New("TOKEN_PEPPER must be at least 32 bytes"))
	}
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	switch strings.ToLower(c.DatabaseDriver) {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch strings.ToLower(c.RateLimitBackend) {
	case "local":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q is not supported", c.RateLimitBackend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.TwoFactorTicketTTL <= 0 || c.TwoFactorTicketTTL > 15*time.Minute {
		errs = append(errs, errors.New("TWO_FACTOR_TICKET_TTL must be between 0 and 15m"))
	}
	if c.EmailWorkers <= 0 || c.EmailQueueSize <= 0 {
		errs = append(errs, errors.New("EMAIL_WORKERS and EMAIL_QUEUE_SIZE must be positive"))
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACE_SAMPLING_RATIO must be within [0,1]"))
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Problems: errs}
}

func (c *Config) IsLocal() bool {
	return profileLabel(c.Profile) == "local"
}
