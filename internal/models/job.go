package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// RenderJob is the registry record of one render. The submitted request
// is stored beside it (see ports.JobStore) and never travels with it.
type RenderJob struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	OutputPath string     `json:"outputPath,omitempty"`
	OutputKey  string     `json:"outputKey,omitempty"`
	Error      string     `json:"error,omitempty"`
	// Owner is the instance that started the render.
	Owner      string     `json:"owner,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewRenderJob returns a queued job with a fresh UUID.
func NewRenderJob(now time.Time) *RenderJob {
	return &RenderJob{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no mutable state with j.
func (j *RenderJob) Clone() *RenderJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
