package ports

import "context"

// JobQueue hands job ids from the API to the worker pool.
type JobQueue interface {
	Push(ctx context.Context, jobID string) error
	// Pop blocks until an id is available or ctx is done. A popped id
	// stays claimed by this process until Ack.
	Pop(ctx context.Context) (string, error)
	// Ack releases an id once the worker is finished with it.
	Ack(ctx context.Context, jobID string) error
	// Reclaim puts back ids this process popped but never acknowledged
	// before it last stopped, and returns how many it moved.
	Reclaim(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	Durable() bool
}
