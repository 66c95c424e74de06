package sharing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/security"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	reg    *registry.Memory
	blobs  *blobstore.Memory
	clock  *testClock
	coord  *Coordinator
	gate   *Gate
	reaper *Reaper
	tokens *TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:   registry.NewMemory(),
		blobs: blobstore.NewMemory(),
		clock: &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.tokens = NewTokenIssuer(strings.Repeat("k", 32), 15*time.Minute)
	f.tokens.now = f.clock.Now

	f.coord = NewCoordinator(f.reg, f.blobs, CoordinatorOptions{
		Policy:     security.DefaultPolicy(),
		Retention:  7 * 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
		Now:        f.clock.Now,
	})
	f.gate = NewGate(f.reg, f.blobs, GateOptions{
		SignedURLTTL: time.Hour,
		Tokens:       f.tokens,
		Now:          f.clock.Now,
	})
	f.reaper = NewReaper(f.reg, f.blobs, ReaperOptions{Now: f.clock.Now})
	return f
}

func textFile(name, body string) IncomingFile {
	return IncomingFile{
		FileSpec: FileSpec{Name: name, Size: int64(len(body)), ContentType: "text/plain"},
		Body:     bytes.NewBufferString(body),
	}
}

// upload stores a batch and fails the test on error.
func (f *fixture) upload(t *testing.T, files ...IncomingFile) *UploadResult {
	t.Helper()
	res, err := f.coord.Upload(context.Background(), UploadRequest{Name: "fixture", Files: files})
	require.NoError(t, err)
	return res
}

func (f *fixture) project(t *testing.T, id uuid.UUID) registry.Project {
	t.Helper()
	p, err := f.reg.GetProject(context.Background(), id)
	require.NoError(t, err)
	return *p
}

// access builds a password request from a fresh upload.
func access(res *UploadResult) AccessRequest {
	return AccessRequest{
		ProjectID:  res.ProjectID.String(),
		Password:   res.Password,
		RemoteAddr: "203.0.113.7",
		UserAgent:  "test-agent",
	}
}
