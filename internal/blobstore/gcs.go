package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSOptions configures the Google Cloud Storage backend. AccessID and
// PrivateKey are the service account used for V4 URL signing.
type GCSOptions struct {
	Bucket          string
	CredentialsFile string
	AccessID        string
	PrivateKey      string
}

// GCS stores blobs in a Cloud Storage bucket.
type GCS struct {
	client     *storage.Client
	bucket     string
	accessID   string
	privateKey []byte
}

// NewGCS opens a storage client. With no credentials file the client uses
// application default credentials.
func NewGCS(ctx context.Context, o GCSOptions) (*GCS, error) {
	if o.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCS{
		client:     client,
		bucket:     o.Bucket,
		accessID:   o.AccessID,
		privateKey: signingKey(o.PrivateKey),
	}, nil
}

// signingKey turns literal \n sequences, as found in keys pasted into env
// vars, back into newlines.
func signingKey(pem string) []byte {
	return []byte(strings.ReplaceAll(pem, `\n`, "\n"))
}

func (g *GCS) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(key)
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	w := g.object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	r, err := g.object(key).NewReader(ctx)
	if err != nil {
		return nil, ObjectInfo{}, mapGCSErr(err)
	}
	return r, ObjectInfo{Key: key, Size: r.Attrs.Size, ContentType: r.Attrs.ContentType}, nil
}

func (g *GCS) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	attrs, err := g.object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, mapGCSErr(err)
	}
	return ObjectInfo{Key: key, Size: attrs.Size, ContentType: attrs.ContentType}, nil
}

func (g *GCS) Delete(ctx context.Context, keys []string) map[string]error {
	out := allDeleted(keys)
	for _, k := range keys {
		if err := g.object(k).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			out[k] = err
		}
	}
	return out
}

func (g *GCS) Sign(_ context.Context, key string, ttl time.Duration, asDownload bool) (string, error) {
	opts := g.signOptions(ttl)
	opts.Method = "GET"
	if asDownload {
		opts.QueryParameters = url.Values{"response-content-disposition": {attachment(key)}}
	}
	return storage.SignedURL(g.bucket, key, opts)
}

func (g *GCS) SignUpload(_ context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	opts := g.signOptions(ttl)
	opts.Method = "PUT"
	opts.ContentType = contentType
	return storage.SignedURL(g.bucket, key, opts)
}

func (g *GCS) signOptions(ttl time.Duration) *storage.SignedURLOptions {
	return &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: g.accessID,
		PrivateKey:     g.privateKey,
	}
}

func (g *GCS) Ping(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	return err
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func mapGCSErr(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
