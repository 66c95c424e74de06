// Package blobstore is the binary storage behind projects. Objects are
// addressed by storage key ("{projectId}/{name}") inside a single bucket.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the blob storage contract. Every call is bounded by ctx.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes keys and reports one result per key; a nil entry
	// means the object is gone, including when it never existed.
	Delete(ctx context.Context, keys []string) map[string]error

	// Sign returns a time-limited GET URL. With asDownload the URL asks the
	// browser to save the object instead of rendering it.
	Sign(ctx context.Context, key string, ttl time.Duration, asDownload bool) (string, error)
	// SignUpload returns a time-limited PUT URL for direct client uploads.
	SignUpload(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error)

	Ping(ctx context.Context) error
}

// attachment builds the Content-Disposition value for a key's file name.
func attachment(key string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, path.Base(key))
}

// allDeleted returns a result map with every key marked successful.
func allDeleted(keys []string) map[string]error {
	out := make(map[string]error, len(keys))
	for _, k := range keys {
		out[k] = nil
	}
	return out
}
