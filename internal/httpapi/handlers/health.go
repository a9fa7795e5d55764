package handlers

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"time"

	"videoproc/internal/httpkit"
	"videoproc/internal/storage"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency.
type CheckResult struct {
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Health reports liveness. With ?deep=true it also checks the job store,
// the queue, the temp root, the ffmpeg binary and the output store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	resp := HealthResponse{Status: "ok", Timestamp: h.now()}

	if r.URL.Query().Get("deep") == "true" {
		resp.Checks = h.deepHealthCheck(r.Context())
		for name, c := range resp.Checks {
			if c.Status != "ok" {
				resp.Status = "degraded"
				h.log.FromContext(r.Context()).Warn("health check degraded", "check", name, "error", c.Error)
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]CheckResult {
	checks := map[string]CheckResult{
		"store":  h.checkStore(ctx),
		"queue":  h.checkQueue(ctx),
		"ffmpeg": h.checkFFmpeg(),
	}
	if h.temp != nil {
		checks["temp"] = h.checkTemp()
	}
	if h.sp != nil {
		checks["output"] = h.checkOutput(ctx)
	}
	return checks
}

// timed runs fn under a 5s deadline and records its latency.
func timed(ctx context.Context, fn func(ctx context.Context) error) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res := CheckResult{Status: "ok"}
	if err := fn(checkCtx); err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

func (h *Handler) checkStore(ctx context.Context) CheckResult {
	store := h.registry.Store()
	res := timed(ctx, store.Ping)
	res.Details = map[string]any{"backend": store.Kind(), "durable": store.Durable()}
	return res
}

func (h *Handler) checkQueue(ctx context.Context) CheckResult {
	var depth int
	res := timed(ctx, func(ctx context.Context) error {
		n, err := h.queue.Len(ctx)
		depth = n
		return err
	})
	res.Details = map[string]any{"depth": depth, "durable": h.queue.Durable()}
	if h.workers != nil {
		res.Details["running"] = h.workers.Running()
	}
	return res
}

func (h *Handler) checkFFmpeg() CheckResult {
	start := time.Now()
	res := CheckResult{Status: "ok"}
	path, err := exec.LookPath(h.ffmpegPath)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	} else {
		res.Details = map[string]any{"path": path}
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// checkTemp verifies the temp root accepts new files.
func (h *Handler) checkTemp() CheckResult {
	return timed(context.Background(), func(context.Context) error {
		f, err := os.CreateTemp(h.temp.Root(), ".health-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	})
}

func (h *Handler) checkOutput(ctx context.Context) CheckResult {
	res := timed(ctx, func(ctx context.Context) error {
		return storage.Ping(ctx, h.sp)
	})
	res.Details = map[string]any{"provider": h.sp.Provider()}
	return res
}
