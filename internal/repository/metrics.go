package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/account-security-service/internal/observability"
)

func recordOperation(ctx context.Context, entity, operation string, err error, notFound ...error) {
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, entity, operation, "success")
	case isAny(err, notFound):
		observability.RecordRepositoryOperation(ctx, entity, operation, "not_found")
	default:
		observability.RecordRepositoryOperation(ctx, entity, operation, "error")
	}
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
