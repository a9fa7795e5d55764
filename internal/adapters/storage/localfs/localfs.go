package localfs

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/ports"
)

// knownTypes covers render outputs that the platform mime table may lack.
var knownTypes = map[string]string{
	".mp4": "video/mp4",
	".png": "image/png",
}

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root is the directory objects are written under.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.ValidationField("object_key", "object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationField("object_key", "object_key escapes the storage root")
	}
	return filepath.Join(l.root, clean), nil
}

// PutObject writes to a temporary sibling and renames it into place so
// readers never observe a partial file.
func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "localfs.put"

	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "create object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "create object file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "write object")
	}
	if err := ctx.Err(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeCanceled, op, "upload canceled")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "move object into place")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, "", 0, errors.NotFound("object", objectKey)
	}
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "localfs.get", "open object")
	}

	if st, statErr := f.Stat(); statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = knownTypes[strings.ToLower(filepath.Ext(p))]
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(p))
	}
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

// Ping ensures the root directory exists.
func (l *LocalFS) Ping(ctx context.Context) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return errors.Wrap(err, "localfs.ping", "create storage root")
	}
	return nil
}
