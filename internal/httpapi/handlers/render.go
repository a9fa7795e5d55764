package handlers

import (
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"videoproc/internal/httpkit"
	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

// SubmitResponse is returned by POST /api/render.
type SubmitResponse struct {
	ID     string           `json:"id"`
	Status models.JobStatus `json:"status"`
}

// StatusResponse is returned by GET /api/render/{id}/status.
type StatusResponse struct {
	ID       string           `json:"id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
}

// PostRender validates the submission, records a queued job and hands it
// to the worker queue.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var req timeline.Request
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx := detached(r.Context())
	job, err := h.registry.Create(ctx, req)
	if err != nil {
		return err
	}

	if err := h.queue.Push(ctx, job.ID); err != nil {
		if derr := h.registry.Delete(ctx, job.ID); derr != nil {
			h.log.LogError(ctx, "failed to drop unqueued job", derr, "job_id", job.ID)
		}
		return err
	}

	h.log.FromContext(ctx).WithJobID(job.ID).Info("render queued",
		"clips", len(req.Clips),
		"duration", req.Timeline.Duration,
		"width", req.Timeline.Width,
		"height", req.Timeline.Height,
	)
	httpkit.WriteJSON(w, http.StatusOK, SubmitResponse{ID: job.ID, Status: job.Status})
	return nil
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) error {
	job, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, StatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	})
	return nil
}

// Download streams the finished MP4. Range requests are honoured for
// the local file; when it is gone the published copy is streamed whole.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	job, err := h.registry.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if job.Status != models.StatusDone {
		return errors.NotReady("render", id, string(job.Status))
	}

	f, err := os.Open(job.OutputPath)
	if os.IsNotExist(err) {
		return h.downloadPublished(w, r, job)
	}
	if err != nil {
		return errors.Wrap(err, "handlers.download", "open output")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "handlers.download", "stat output")
	}
	if !st.Mode().IsRegular() {
		return h.downloadPublished(w, r, job)
	}

	setDownloadHeaders(w)
	http.ServeContent(w, r, "video.mp4", st.ModTime(), f)
	return nil
}

func (h *Handler) downloadPublished(w http.ResponseWriter, r *http.Request, job *models.RenderJob) error {
	if h.sp == nil || job.OutputKey == "" {
		return errors.NotFound("output file", job.ID)
	}

	rc, _, size, err := h.sp.GetObject(r.Context(), job.OutputKey)
	if errors.IsNotFound(err) {
		return errors.NotFound("output file", job.ID)
	}
	if err != nil {
		return errors.Wrap(err, "handlers.download", "fetch published output")
	}
	defer rc.Close()

	setDownloadHeaders(w)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).WithJobID(job.ID).Warn("published download interrupted",
			"provider", h.sp.Provider(),
			"error", err.Error(),
		)
	}
	return nil
}

func setDownloadHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="video.mp4"`)
}

// DeleteRender kills a running render and forgets the job. It succeeds
// whether or not the job exists.
func (h *Handler) DeleteRender(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	ctx := detached(r.Context())
	log := h.log.FromContext(ctx).WithJobID(id)

	canceled := false
	if h.workers != nil {
		canceled = h.workers.Cancel(id)
	}
	h.cleanup(id)
	if err := h.registry.Delete(ctx, id); err != nil {
		log.Warn("delete job record failed", "error", err.Error())
	}

	log.Info("render deleted", "canceled", canceled)
	httpkit.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}
