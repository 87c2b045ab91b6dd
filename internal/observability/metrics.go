package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "account-security-service"

type AppMetrics struct {
	authLoginCounter     metric.Int64Counter
	repositoryOpCounter  metric.Int64Counter
	securityTokenCounter metric.Int64Counter
	twoFactorCounter     metric.Int64Counter
	sessionCounter       metric.Int64Counter
	rateLimitCounter     metric.Int64Counter
	rateLimitRetryAfter  metric.Float64Histogram
	emailDispatchCounter metric.Int64Counter
	sweepRemovedCounter  metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	if err := RegisterMetrics(mp); err != nil {
		return nil, err
	}

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// RegisterMetrics points the Record* helpers at instruments from mp.
func RegisterMetrics(mp metric.MeterProvider) error {
	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	if m.authLoginCounter, err = meter.Int64Counter("auth.login.attempts"); err != nil {
		return nil, err
	}
	if m.repositoryOpCounter, err = meter.Int64Counter("repository.operations"); err != nil {
		return nil, err
	}
	if m.securityTokenCounter, err = meter.Int64Counter("security_token.events"); err != nil {
		return nil, err
	}
	if m.twoFactorCounter, err = meter.Int64Counter("two_factor.events"); err != nil {
		return nil, err
	}
	if m.sessionCounter, err = meter.Int64Counter("session.events"); err != nil {
		return nil, err
	}
	if m.rateLimitCounter, err = meter.Int64Counter("rate_limit.decisions"); err != nil {
		return nil, err
	}
	if m.rateLimitRetryAfter, err = meter.Float64Histogram("rate_limit.retry_after", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.emailDispatchCounter, err = meter.Int64Counter("email.dispatch"); err != nil {
		return nil, err
	}
	if m.sweepRemovedCounter, err = meter.Int64Counter("sweep.removed"); err != nil {
		return nil, err
	}
	return &m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, method, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordSecurityTokenEvent(ctx context.Context, purpose, event string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.securityTokenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("event", event),
	))
}

func RecordTwoFactorEvent(ctx context.Context, event, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.twoFactorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionEvent(ctx context.Context, event string, n int64) {
	m := currentMetrics()
	if m == nil || n <= 0 {
		return
	}
	m.sessionCounter.Add(ctx, n, metric.WithAttributes(attribute.String("event", event)))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope string, retryAfter time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
}

func RecordEmailDispatch(ctx context.Context, kind, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.emailDispatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordSweep(ctx context.Context, entity string, removed int64) {
	m := currentMetrics()
	if m == nil || removed <= 0 {
		return
	}
	m.sweepRemovedCounter.Add(ctx, removed, metric.WithAttributes(attribute.String("entity", entity)))
}
