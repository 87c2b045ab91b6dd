package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// knownProfiles bounds the profile attribute; anything else reports as "other".
var knownProfiles = map[string]struct{}{
	"local":   {},
	"test":    {},
	"staging": {},
	"prod":    {},
}

func recordConfigLoad(ctx context.Context, profile string, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("account_security/config").Int64Counter(
			"account_security.config.loads",
			metric.WithDescription("Configuration loads by profile and failure reason."),
		)
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profileLabel(profile)),
		attribute.String("reason", loadFailureReason(err)),
	))
}

func profileLabel(profile string) string {
	v := strings.ToLower(strings.TrimSpace(profile))
	switch v {
	case "":
		return "unset"
	case "production":
		return "prod"
	}
	if _, ok := knownProfiles[v]; ok {
		return v
	}
	return "other"
}

// loadFailureReason buckets a Load error by type rather than by message.
func loadFailureReason(err error) string {
	var (
		invalid   *ValidationError
		malformed env.ParseError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.As(err, &malformed):
		return "malformed_value"
	default:
		return "environment"
	}
}
