package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in the snapshot bucket. ContentType is only
// populated on direct reads; bucket listings do not carry it.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads snapshot files to object storage. The archiver picks
// Put or PutMultipart by encoded size.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader lists stored snapshots and streams them back out for the API.
// Get returns ErrNotFound for missing objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
