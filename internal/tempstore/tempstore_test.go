package tempstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/pkg/errors"
)

func TestLayout(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	dir, err := m.Ensure("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Root(), "job-1"), dir)
	assert.DirExists(t, dir)

	out, err := m.OutputPath("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, OutputName), out)
	assert.True(t, filepath.IsAbs(out))
	assert.NoFileExists(t, out)

	a, err := m.AssetPath("job-1", ".png")
	require.NoError(t, err)
	b, err := m.AssetPath("job-1", "mp4")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, dir, filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.True(t, strings.HasSuffix(b, ".mp4"))

	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))
	assert.FileExists(t, out)
}

func TestRemoveIsRecursiveAndIdempotent(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	p, err := m.AssetPath("job-2", ".jpg")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))

	require.NoError(t, m.Remove("job-2"))
	require.NoError(t, m.Remove("job-2"))
	assert.NoDirExists(t, filepath.Join(m.Root(), "job-2"))
}

func TestRejectsUnsafeIDs(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../etc", "a/b", `a\b`, "x..y"} {
		_, err := m.JobDir(id)
		assert.True(t, errors.IsValidation(err), "id %q", id)
		assert.True(t, errors.IsValidation(m.Remove(id)), "id %q", id)
	}
}
