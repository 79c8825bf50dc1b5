package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskHierarchyIntegrity verifies partner hierarchy paths and depths.
	TaskHierarchyIntegrity = "partners:hierarchy_integrity"
	// TaskPermissionCacheWarmup pre-resolves permissions into the cache.
	TaskPermissionCacheWarmup = "permissions:cache_warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// HierarchyIntegrityPayload configures the integrity scan.
type HierarchyIntegrityPayload struct {
	// MaxReported caps the number of inconsistencies logged per run.
	MaxReported int `json:"max_reported"`
}

// NewHierarchyIntegrityTask constructs the integrity scan task.
func NewHierarchyIntegrityTask(payload HierarchyIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHierarchyIntegrity, data), nil
}

// CacheWarmupPayload configures the permission cache warmup.
type CacheWarmupPayload struct {
	// MaxUsers bounds how many override holders get warmed per run.
	MaxUsers int `json:"max_users"`
}

// NewCacheWarmupTask constructs the cache warmup task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionCacheWarmup, data), nil
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueHierarchyIntegrity enqueues an integrity scan.
func (c *Client) EnqueueHierarchyIntegrity(ctx context.Context, payload HierarchyIntegrityPayload) (*asynq.TaskInfo, error) {
	task, err := NewHierarchyIntegrityTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueCacheWarmup enqueues a permission cache warmup.
func (c *Client) EnqueueCacheWarmup(ctx context.Context, payload CacheWarmupPayload) (*asynq.TaskInfo, error) {
	task, err := NewCacheWarmupTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
