package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func DBChecker(db *gorm.DB) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		sqlDB, err := db.DB()
		if err != nil {
			return CheckResult{Name: "db", Error: err.Error()}
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return CheckResult{Name: "db", Error: err.Error()}
		}
		return CheckResult{Name: "db", Healthy: true}
	})
}

func RedisChecker(client redis.UniversalClient) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := client.Ping(ctx).Err(); err != nil {
			return CheckResult{Name: "redis", Error: err.Error()}
		}
		return CheckResult{Name: "redis", Healthy: true}
	})
}
