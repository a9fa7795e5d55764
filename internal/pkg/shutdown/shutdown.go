// Package shutdown coordinates graceful process shutdown.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"videoproc/internal/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Manager runs registered cleanup steps once a shutdown is triggered.
// Steps run one at a time in reverse registration order, so consumers
// registered last (HTTP server, worker pool) stop before the stores
// registered first.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []step

	once sync.Once
	done chan struct{}
}

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// NewManager returns a Manager whose whole shutdown is bounded by timeout
// (30s when zero).
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.steps = append(m.steps, step{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug("registered shutdown step", "name", name)
}

// RegisterSimple registers a step that cannot fail.
func (m *Manager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP arrives or ctx is done,
// then runs the shutdown.
func (m *Manager) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	<-sigCtx.Done()
	m.log.Info("shutdown requested", "cause", context.Cause(sigCtx).Error())
	m.Shutdown()
}

// Shutdown runs all steps. Calls after the first block until the first
// one finishes and then return.
func (m *Manager) Shutdown() {
	m.once.Do(m.run)
	<-m.done
}

// Done is closed once the shutdown has finished or timed out.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) run() {
	defer close(m.done)

	m.mu.Lock()
	steps := append([]step(nil), m.steps...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("graceful shutdown started", "steps", len(steps), "timeout", m.timeout.String())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := len(steps) - 1; i >= 0 && ctx.Err() == nil; i-- {
			s := steps[i]
			start := time.Now()
			err := s.fn(ctx)
			elapsed := time.Since(start).Milliseconds()
			if err != nil {
				m.log.Error("shutdown step failed", "name", s.name, "error", err.Error(), "duration_ms", elapsed)
				continue
			}
			m.log.Debug("shutdown step done", "name", s.name, "duration_ms", elapsed)
		}
	}()

	select {
	case <-finished:
		m.log.Info("graceful shutdown completed")
	case <-ctx.Done():
		m.log.Warn("shutdown timeout exceeded, abandoning remaining steps")
	}
}
