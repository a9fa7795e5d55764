package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
)

// OutputKey is the object key of a published render.
func OutputKey(jobID string) string {
	return fmt.Sprintf("renders/%s/video.mp4", jobID)
}

type OutputHandler struct {
	sp  ports.StorageProvider
	log *logger.Logger
}

func NewOutputHandler(sp ports.StorageProvider, log *logger.Logger) *OutputHandler {
	return &OutputHandler{sp: sp, log: log}
}

// Publish copies the render to the output store and returns the stored
// key. Publishing is best effort: failures are logged and yield "".
func (oh *OutputHandler) Publish(ctx context.Context, jobID, path string) string {
	if oh.sp == nil {
		return ""
	}
	log := oh.log.FromContext(ctx).WithJobID(jobID)

	f, err := os.Open(path)
	if err != nil {
		log.Warn("publish skipped, output unreadable", "error", err.Error())
		return ""
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	start := time.Now()
	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   OutputKey(jobID),
		ContentType: "video/mp4",
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		log.Warn("publish failed", "provider", oh.sp.Provider(), "error", err.Error())
		return ""
	}

	log.Info("output published",
		"provider", oh.sp.Provider(),
		"object_key", out.ObjectKey,
		"bytes", out.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out.ObjectKey
}
