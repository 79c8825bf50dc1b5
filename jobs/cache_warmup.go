package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightdeck/freightdeck/internal/permissions"
)

// CacheWarmupJob pre-resolves permissions for users that carry overrides,
// so the first request after a cache flush does not pay the database
// round trip. Users without overrides resolve from their role template at
// request time.
type CacheWarmupJob struct {
	Pool    *pgxpool.Pool
	Service *permissions.Service
	Logger  *slog.Logger
}

// NewCacheWarmupJob initialises the warmup handler.
func NewCacheWarmupJob(pool *pgxpool.Pool, service *permissions.Service, logger *slog.Logger) *CacheWarmupJob {
	return &CacheWarmupJob{Pool: pool, Service: service, Logger: logger}
}

// Handle executes the warmup.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxUsers <= 0 {
		payload.MaxUsers = 1000
	}

	start := time.Now()
	logger := j.logger()
	logger.Info("starting permission cache warmup")

	scopes, err := j.loadScopes(ctx, payload.MaxUsers)
	if err != nil {
		logger.Error("warmup failed", slog.Any("error", err))
		return err
	}

	warmed, skipped := j.warm(ctx, scopes)

	logger.Info("completed permission cache warmup",
		slog.Int("scopes", len(scopes)),
		slog.Int("warmed", warmed),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// warm resolves each scope under the role recorded on its override row,
// so the cached entry lives at the same key an authenticated request for
// that user reads. Scopes without a recorded role are skipped: resolving
// them would cache entries no request ever looks up.
func (j *CacheWarmupJob) warm(ctx context.Context, scopes []overrideScope) (warmed, skipped int) {
	logger := j.logger()
	for _, scope := range scopes {
		if scope.role == "" {
			skipped++
			continue
		}
		if _, err := j.Service.Resolve(ctx, scope.userID, scope.role, scope.projectID); err != nil {
			logger.Warn("warmup resolve",
				slog.String("user_id", scope.userID),
				slog.Any("error", err),
			)
			continue
		}
		warmed++
	}
	return warmed, skipped
}

type overrideScope struct {
	userID    string
	role      string
	projectID *string
}

func (j *CacheWarmupJob) loadScopes(ctx context.Context, limit int) ([]overrideScope, error) {
	if j.Pool == nil {
		return nil, errors.New("cache warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
SELECT user_id, role, project_id
FROM user_permissions
ORDER BY updated_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []overrideScope
	for rows.Next() {
		var scope overrideScope
		if err := rows.Scan(&scope.userID, &scope.role, &scope.projectID); err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPermissionCacheWarmup))
}
