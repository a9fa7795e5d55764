// Package handlers implements the render API endpoints.
package handlers

import (
	"context"
	"time"

	"videoproc/internal/events"
	"videoproc/internal/jobs"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
	"videoproc/internal/tempstore"
)

// Canceller stops a running render.
type Canceller interface {
	Cancel(jobID string) bool
	Running() int
}

type Deps struct {
	Registry *jobs.Registry
	Queue    ports.JobQueue
	Bus      *events.Bus
	Temp     *tempstore.Manager
	Workers  Canceller
	// Cleanup removes the job's temp directory.
	Cleanup func(jobID string)
	// SP is the output store; nil when publishing is disabled.
	SP         ports.StorageProvider
	FFmpegPath string
	Log        *logger.Logger

	// KeepAlive is the SSE comment interval. Defaults to 15s.
	KeepAlive time.Duration
	now       func() time.Time
}

type Handler struct {
	registry   *jobs.Registry
	queue      ports.JobQueue
	bus        *events.Bus
	temp       *tempstore.Manager
	workers    Canceller
	cleanup    func(jobID string)
	sp         ports.StorageProvider
	ffmpegPath string
	log        *logger.Logger
	keepAlive  time.Duration
	now        func() time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	cleanup := d.Cleanup
	if cleanup == nil {
		cleanup = func(string) {}
	}
	keepAlive := d.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	now := d.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		registry:   d.Registry,
		queue:      d.Queue,
		bus:        d.Bus,
		temp:       d.Temp,
		workers:    d.Workers,
		cleanup:    cleanup,
		sp:         d.SP,
		ffmpegPath: d.FFmpegPath,
		log:        log.WithComponent("http"),
		keepAlive:  keepAlive,
		now:        now,
	}
}

// detached keeps request-scoped values but survives the client going away.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
