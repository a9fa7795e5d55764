package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"videoproc/internal/events"
)

// sseWrite writes one event frame and flushes it.
func sseWrite(w http.ResponseWriter, name string, ev events.Event) {
	data, _ := json.Marshal(ev)
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams "status" events for one job until it reaches a terminal
// state, the job is deleted or the client disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	// Subscribe first so no transition between the read and the
	// subscription is lost.
	ch := h.bus.Subscribe(id)
	defer h.bus.Unsubscribe(id, ch)

	job, err := h.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sseWrite(w, "status", events.FromJob(job))
	if job.Status.Terminal() {
		return nil
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			sendKeepAlive(w)
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			sseWrite(w, "status", ev)
			if ev.Status.Terminal() {
				return nil
			}
		}
	}
}
