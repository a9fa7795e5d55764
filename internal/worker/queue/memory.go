// Package queue hands job ids from the API to the worker pool.
package queue

import (
	"context"

	"videoproc/internal/pkg/errors"
)

// Memory is a bounded in-process FIFO.
type Memory struct {
	ch chan string
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{ch: make(chan string, capacity)}
}

// Push enqueues jobID without blocking. A full queue is RESOURCE_EXHAUSTED.
func (q *Memory) Push(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.Exhausted("render queue", cap(q.ch))
	}
}

func (q *Memory) Pop(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ack is a no-op: ids do not outlive the process.
func (q *Memory) Ack(context.Context, string) error { return nil }

// Reclaim has nothing to restore after a restart.
func (q *Memory) Reclaim(context.Context) (int, error) { return 0, nil }

func (q *Memory) Len(context.Context) (int, error) { return len(q.ch), nil }
func (q *Memory) Durable() bool                    { return false }
func (q *Memory) Capacity() int                    { return cap(q.ch) }
