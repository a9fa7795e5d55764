package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// For localfs and s3 this is the requested key.
	// For gdrive it is the Drive fileId, needed to read or delete later.
	ObjectKey string
	Size      int64
}

// StorageProvider publishes finished renders to durable storage
// (localfs, gdrive, s3).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	// GetObject streams a published render back; unknown keys are NOT_FOUND.
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
}
