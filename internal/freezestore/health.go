package freezestore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/health"
)

// DatabaseHealthChecker checks that the freeze database is reachable.
type DatabaseHealthChecker struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// NewDatabaseHealthChecker creates a new database health checker.
func NewDatabaseHealthChecker(logger *zap.Logger, pool *pgxpool.Pool) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{
		logger: logger,
		pool:   pool,
	}
}

// Name returns the name of the health check.
func (c *DatabaseHealthChecker) Name() string {
	return "freeze-database"
}

// Check performs the health check.
func (c *DatabaseHealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := c.pool.Ping(checkCtx)

	result := health.CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if err != nil {
		result.Status = health.StatusError
		result.Message = fmt.Sprintf("Database ping failed: %v", err)
		c.logger.Warn("Freeze database check failed", zap.Error(err))
	} else {
		result.Status = health.StatusOK
		result.Message = "Database connection healthy"
	}

	return result
}
