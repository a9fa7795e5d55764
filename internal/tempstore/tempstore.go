// Package tempstore manages the per-job working directories:
//
//	<root>/<jobID>/<uuid>.<ext>   downloaded assets
//	<root>/<jobID>/output.mp4     render output
package tempstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"videoproc/internal/pkg/errors"
)

// OutputName is the file name of a finished render inside the job dir.
const OutputName = "output.mp4"

type Manager struct {
	root string
}

// New returns a manager rooted at root. The root is made absolute so
// output paths handed to clients do not depend on the working directory.
func New(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		root = filepath.Join(os.TempDir(), "videoproc")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "tempstore.new", "resolve root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "tempstore.new", "create root")
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string { return m.root }

// JobDir returns <root>/<jobID>.
func (m *Manager) JobDir(jobID string) (string, error) {
	if err := checkID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(m.root, jobID), nil
}

// Ensure creates the job directory if needed and returns it.
func (m *Manager) Ensure(jobID string) (string, error) {
	dir, err := m.JobDir(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "tempstore.ensure", "create job dir").WithField("job_id", jobID)
	}
	return dir, nil
}

// AssetPath returns a fresh, unique asset path inside the job dir.
// ext includes the leading dot.
func (m *Manager) AssetPath(jobID, ext string) (string, error) {
	dir, err := m.Ensure(jobID)
	if err != nil {
		return "", err
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, uuid.NewString()+ext), nil
}

func (m *Manager) OutputPath(jobID string) (string, error) {
	dir, err := m.JobDir(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, OutputName), nil
}

// Remove deletes the job dir and everything in it. Missing dirs are fine.
func (m *Manager) Remove(jobID string) error {
	dir, err := m.JobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "tempstore.remove", "remove job dir").WithField("job_id", jobID)
	}
	return nil
}

func checkID(jobID string) error {
	if jobID == "" || jobID == "." || strings.Contains(jobID, "..") ||
		strings.ContainsAny(jobID, `/\`) || strings.ContainsRune(jobID, os.PathSeparator) {
		return errors.ValidationField("id", "invalid job id").WithField("id", jobID)
	}
	return nil
}
