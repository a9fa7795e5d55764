package processor

import (
	"videoproc/internal/pkg/logger"
	"videoproc/internal/tempstore"
)

type Cleanup struct {
	temp *tempstore.Manager
	log  *logger.Logger
}

func NewCleanup(temp *tempstore.Manager, log *logger.Logger) *Cleanup {
	return &Cleanup{temp: temp, log: log}
}

// CleanupJob removes the job's temp directory. Errors are logged only.
func (c *Cleanup) CleanupJob(jobID string) {
	if c.temp == nil {
		return
	}
	if err := c.temp.Remove(jobID); err != nil {
		c.log.WithJobID(jobID).Warn("failed to remove job dir", "error", err.Error())
	}
}
