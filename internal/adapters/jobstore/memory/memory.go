// Package memory is the process-local job store. Records do not survive
// a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*models.RenderJob
	requests map[string]timeline.Request
}

func New() *Store {
	return &Store{
		jobs:     make(map[string]*models.RenderJob),
		requests: make(map[string]timeline.Request),
	}
}

func (s *Store) Kind() string  { return "memory" }
func (s *Store) Durable() bool { return false }

func (s *Store) Create(_ context.Context, job *models.RenderJob, req timeline.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return errors.Conflict("job already exists").WithField("id", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.requests[job.ID] = req
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*models.RenderJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	return job.Clone(), nil
}

func (s *Store) Update(_ context.Context, job *models.RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return errors.NotFound("job", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.requests, id)
	return nil
}

// Request returns the stored request. The clip slice is copied; clip
// values are never modified after submission.
func (s *Store) Request(_ context.Context, id string) (timeline.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return timeline.Request{}, errors.NotFound("request", id)
	}
	req.Clips = append([]timeline.Clip(nil), req.Clips...)
	return req, nil
}

func (s *Store) DropRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	return nil
}

// List returns all jobs, oldest first.
func (s *Store) List(_ context.Context) ([]*models.RenderJob, error) {
	s.mu.RLock()
	out := make([]*models.RenderJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
