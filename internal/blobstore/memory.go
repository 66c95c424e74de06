package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject

	failPut    map[string]error
	failDelete map[string]error
	pingErr    error
}

type memObject struct {
	data        []byte
	contentType string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		objects:    make(map[string]memObject),
		failPut:    make(map[string]error),
		failDelete: make(map[string]error),
	}
}

// FailPut makes Put for key return err. The key "*" matches every key.
func (m *Memory) FailPut(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut[key] = err
}

// FailDelete makes Delete report err for key.
func (m *Memory) FailDelete(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDelete[key] = err
}

// FailPing makes Ping return err.
func (m *Memory) FailPing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	err := m.failPut[key]
	if err == nil {
		err = m.failPut["*"]
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: read %d bytes, expected %d", key, len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, contentType: contentType}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), ObjectInfo{Key: key, Size: int64(len(o.data)), ContentType: o.contentType}, nil
}

func (m *Memory) Stat(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return ObjectInfo{Key: key, Size: int64(len(o.data)), ContentType: o.contentType}, nil
}

func (m *Memory) Delete(_ context.Context, keys []string) map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := allDeleted(keys)
	for _, k := range keys {
		if err := m.failDelete[k]; err != nil {
			out[k] = err
			continue
		}
		delete(m.objects, k)
	}
	return out
}

func (m *Memory) Sign(_ context.Context, key string, ttl time.Duration, asDownload bool) (string, error) {
	q := url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}
	if asDownload {
		q.Set("response-content-disposition", attachment(key))
	}
	return "memory://blobs/" + key + "?" + q.Encode(), nil
}

func (m *Memory) SignUpload(_ context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	q := url.Values{
		"expires":      {time.Now().Add(ttl).UTC().Format(time.RFC3339)},
		"content-type": {contentType},
		"method":       {"PUT"},
	}
	return "memory://blobs/" + key + "?" + q.Encode(), nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}
