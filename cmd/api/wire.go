package main

import (
	"context"

	"github.com/redis/go-redis/v9"

	"videoproc/internal/adapters/jobstore/memory"
	"videoproc/internal/adapters/jobstore/postgres"
	"videoproc/internal/adapters/jobstore/redisstore"
	"videoproc/internal/adapters/jobstore/sqlite"
	"videoproc/internal/config"
	"videoproc/internal/jobs"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
	"videoproc/internal/worker/queue"
)

// newRedis connects when a store or queue needs Redis, otherwise it returns nil.
func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "api.redis", "ping redis")
	}
	return rdb, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (ports.JobStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		return redisstore.New(rdb, "videoproc"), nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.New(), nil
	}
}

func openQueue(cfg *config.Config, rdb *redis.Client) ports.JobQueue {
	if cfg.Queue.Driver == "redis" {
		return queue.NewRedisQueue(rdb, cfg.Queue.Name, cfg.InstanceID, cfg.Queue.Capacity)
	}
	return queue.NewMemory(cfg.Queue.Capacity)
}

// recoverJobs reconciles what this instance left behind before its
// workers start. Its interrupted renders are failed. A durable queue gets
// back the ids this instance had popped; a fresh in-memory queue is
// refilled from the queued records.
func recoverJobs(ctx context.Context, registry *jobs.Registry, q ports.JobQueue, log *logger.Logger) error {
	queued, err := registry.Recover(ctx)
	if err != nil {
		return err
	}

	if q.Durable() {
		moved, err := q.Reclaim(ctx)
		if err != nil {
			return err
		}
		if moved > 0 {
			log.Info("reclaimed unacknowledged jobs", "count", moved)
		}
		return nil
	}

	for _, id := range queued {
		if err := q.Push(ctx, id); err != nil {
			log.LogError(ctx, "failed to requeue job", err, "job_id", id)
			_ = registry.Fail(ctx, id, "render queue full after restart")
		}
	}
	if len(queued) > 0 {
		log.Info("requeued jobs", "count", len(queued))
	}
	return nil
}
