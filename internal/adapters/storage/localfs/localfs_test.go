package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/ports"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	fs := New(t.TempDir())

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "renders/job-1/video.mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("frames"),
	})
	require.NoError(t, err)
	assert.Equal(t, "renders/job-1/video.mp4", out.ObjectKey)
	assert.Equal(t, int64(6), out.Size)

	rc, ct, size, err := fs.GetObject(ctx, out.ObjectKey)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "frames", string(body))
	assert.Equal(t, "video/mp4", ct)
	assert.Equal(t, int64(6), size)

	_, _, _, err = fs.GetObject(ctx, "renders/job-2/video.mp4")
	assert.True(t, errors.IsNotFound(err))
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	fs := New(root)

	_, err := fs.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "renders/a/video.mp4",
		Reader:    strings.NewReader("x"),
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "renders", "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "video.mp4", entries[0].Name())
}

func TestRejectsEscapingKeys(t *testing.T) {
	fs := New(t.TempDir())
	for _, key := range []string{"", "../outside", "/etc/passwd", "a/../../b"} {
		_, err := fs.PutObject(context.Background(), ports.PutObjectInput{
			ObjectKey: key,
			Reader:    strings.NewReader("x"),
		})
		assert.True(t, errors.IsValidation(err), "key %q", key)
	}
}

func TestPingCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "published")
	require.NoError(t, New(root).Ping(context.Background()))
	st, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}
