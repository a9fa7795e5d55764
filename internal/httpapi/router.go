// Package httpapi assembles the HTTP surface of the render service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"videoproc/internal/httpapi/handlers"
	"videoproc/internal/httpkit"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps
	Log      *logger.Logger

	CORSAllowedOrigins []string
	// MaxBodyBytes caps POST /api/render bodies.
	MaxBodyBytes int64
	// StatusTimeout bounds the status and health handlers.
	StatusTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	statusTimeout := d.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 10 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSAllowedOrigins,
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}
	bounded := r.With(middleware.Timeout(statusTimeout))

	// ---- HEALTH ----
	bounded.Get("/health", wrap(h.Health))

	// ---- RENDER ----
	r.With(middleware.BodyLimit(d.MaxBodyBytes)).Post("/api/render", wrap(h.PostRender))
	bounded.Get("/api/render/{id}/status", wrap(h.GetStatus))
	r.Get("/api/render/{id}/download", wrap(h.Download))
	r.Get("/api/render/{id}/events", wrap(h.Events))
	r.Delete("/api/render/{id}", wrap(h.DeleteRender))

	return r
}
