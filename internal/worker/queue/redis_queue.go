package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"videoproc/internal/pkg/errors"
)

// RedisQueue is a list-backed FIFO: LPUSH on submit, BLMOVE in workers.
// Each consumer moves the ids it pops into its own processing list and
// removes them on Ack, so a consumer that dies mid-job can Reclaim them
// after a restart without touching ids other consumers hold.
type RedisQueue struct {
	rdb        *redis.Client
	queueName  string
	processing string
	// capacity caps the list length; 0 means unbounded.
	capacity int
	// popTimeout bounds one BLMOVE so workers notice shutdown.
	popTimeout time.Duration
}

// NewRedisQueue returns a queue whose popped ids are parked under
// "<queueName>:processing:<consumer>". consumer must be stable across
// restarts of the same process and unique among live ones.
func NewRedisQueue(rdb *redis.Client, queueName, consumer string, capacity int) *RedisQueue {
	if queueName == "" {
		queueName = "videoproc:render_jobs"
	}
	if consumer == "" {
		consumer = "default"
	}
	return &RedisQueue{
		rdb:        rdb,
		queueName:  queueName,
		processing: queueName + ":processing:" + consumer,
		capacity:   capacity,
		popTimeout: 2 * time.Second,
	}
}

func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	if q.capacity > 0 {
		n, err := q.rdb.LLen(ctx, q.queueName).Result()
		if err != nil {
			return errors.Wrap(err, "queue.push", "read queue length")
		}
		if n >= int64(q.capacity) {
			return errors.Exhausted("render queue", q.capacity)
		}
	}
	if err := q.rdb.LPush(ctx, q.queueName, jobID).Err(); err != nil {
		return errors.Wrap(err, "queue.push", "enqueue job")
	}
	return nil
}

// Pop blocks until an id is available or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	for {
		id, err := q.rdb.BLMove(ctx, q.queueName, q.processing, "RIGHT", "LEFT", q.popTimeout).Result()
		switch {
		case err == nil && id != "":
			return id, nil
		case err == nil, stderrors.Is(err, redis.Nil):
			// timed out with nothing queued
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", errors.Wrap(err, "queue.pop", "dequeue job")
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	if err := q.rdb.LRem(ctx, q.processing, 1, jobID).Err(); err != nil {
		return errors.Wrap(err, "queue.ack", "release job")
	}
	return nil
}

// Reclaim moves everything left in this consumer's processing list back
// to the consuming end of the queue, oldest first.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.queueName, "LEFT", "RIGHT").Err()
		if stderrors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, errors.Wrap(err, "queue.reclaim", "requeue job")
		}
		moved++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, errors.Wrap(err, "queue.len", "read queue length")
	}
	return int(n), nil
}

func (q *RedisQueue) Durable() bool { return true }
