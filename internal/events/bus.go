// Package events fans job state changes out to live subscribers.
package events

import (
	"sync"
	"time"

	"videoproc/internal/models"
)

// Event is a snapshot of a job after a state change.
type Event struct {
	JobID    string           `json:"id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
	At       time.Time        `json:"at"`
}

// FromJob builds an event from a job record.
func FromJob(j *models.RenderJob) Event {
	return Event{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
		At:       j.UpdatedAt,
	}
}

// Bus is an in-process publish/subscribe hub keyed by job id.
// Publishing never blocks; slow subscribers miss intermediate events but
// always receive the terminal one.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]chan Event)}
}

// Subscribe returns a buffered channel receiving events for jobID.
func (b *Bus) Subscribe(jobID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subscribers[jobID] = append(b.subscribers[jobID], ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.subscribers[jobID]) == 0 {
		delete(b.subscribers, jobID)
	}
}

// Publish delivers ev to every subscriber of ev.JobID.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[ev.JobID] {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Status.Terminal() {
			continue
		}
		// make room by dropping the oldest buffered update
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (b *Bus) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[jobID])
}

// Close ends every subscription for jobID. Used when a job record is removed.
func (b *Bus) Close(jobID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers[jobID] {
		close(ch)
	}
	delete(b.subscribers, jobID)
}
