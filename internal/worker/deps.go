package worker

import (
	"context"
	"time"

	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
)

// JobProcessor runs one job to completion.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

type Deps struct {
	Queue     ports.JobQueue
	Processor JobProcessor
	// Concurrency is the number of jobs rendered at once.
	Concurrency int
	// JobTimeout bounds one job; zero disables the limit.
	JobTimeout time.Duration
	Log        *logger.Logger
}
