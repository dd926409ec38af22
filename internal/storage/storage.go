// Package storage abstracts where raw recording archives and rendered
// videos live: an S3-compatible bucket or a local directory tree.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound means the key holds no object.
var ErrNotFound = errors.New("object not found")

// ErrPresignUnsupported is returned by backends that cannot hand out
// direct download links; callers stream the object themselves.
var ErrPresignUnsupported = errors.New("presigned URLs not supported")

// Backend identifiers accepted by the RECORD_STORAGE setting.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Storage is the recording blob store.
type Storage interface {
	// Save writes an object, replacing any previous content.
	Save(ctx context.Context, key string, r io.Reader) error
	// Open returns a reader over an object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Size returns an object's size in bytes, 0 when it is missing.
	Size(ctx context.Context, key string) (int64, error)
	// Delete removes one object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object below a prefix and returns the
	// count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PresignGet returns a time-limited download URL that forces an
	// attachment download under the given filename, or
	// ErrPresignUnsupported.
	PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}
