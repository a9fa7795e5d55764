package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/models"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("job-1")
	other := bus.Subscribe("job-2")

	bus.Publish(Event{JobID: "job-1", Status: models.StatusProcessing, Progress: 40})

	select {
	case ev := <-ch:
		assert.Equal(t, models.StatusProcessing, ev.Status)
		assert.Equal(t, 40, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("expected event for job-1")
	}

	select {
	case ev := <-other:
		t.Fatalf("job-2 subscriber received %+v", ev)
	default:
	}
}

func TestBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("job-1")

	for i := 0; i < 100; i++ {
		bus.Publish(Event{JobID: "job-1", Progress: i})
	}
	assert.Len(t, ch, cap(ch))
}

func TestBusTerminalEventSurvivesFullBuffer(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("job-1")

	for i := 0; i < cap(ch); i++ {
		bus.Publish(Event{JobID: "job-1", Status: models.StatusProcessing, Progress: i})
	}
	bus.Publish(Event{JobID: "job-1", Status: models.StatusDone, Progress: 100})

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, models.StatusDone, last.Status)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("job-1")
	require.Equal(t, 1, bus.Subscribers("job-1"))

	bus.Unsubscribe("job-1", ch)
	assert.Equal(t, 0, bus.Subscribers("job-1"))

	_, open := <-ch
	assert.False(t, open, "channel should be closed")

	bus.Publish(Event{JobID: "job-1"})
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{JobID: "x"})
}

func TestFromJob(t *testing.T) {
	now := time.Now().UTC()
	ev := FromJob(&models.RenderJob{ID: "a", Status: models.StatusError, Progress: 35, Error: "boom", UpdatedAt: now})
	assert.Equal(t, Event{JobID: "a", Status: models.StatusError, Progress: 35, Error: "boom", At: now}, ev)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("job-1")
	bus.Close("job-1")

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers("job-1"))

	// unsubscribing after close must not double-close
	bus.Unsubscribe("job-1", ch)
}
