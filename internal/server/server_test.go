package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/lockout"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/security"
	"github.com/hide-yama/file-share/internal/sharing"
	"github.com/hide-yama/file-share/internal/textroom"
)

const testAdminToken = "admin-token-0123456789"

type testEnv struct {
	srv     *Server
	h       http.Handler
	reg     *registry.Memory
	blobs   *blobstore.Memory
	metrics *Metrics
}

type envOptions struct {
	cfg      Config
	roomOpts textroom.Options
}

func newTestEnv(t *testing.T, mutate ...func(*envOptions)) *testEnv {
	t.Helper()

	o := envOptions{
		cfg: Config{
			Version:      "test",
			AdminToken:   testAdminToken,
			DownloadMode: config.DownloadStream,
		},
	}
	for _, m := range mutate {
		m(&o)
	}

	env := &testEnv{
		reg:     registry.NewMemory(),
		blobs:   blobstore.NewMemory(),
		metrics: NewMetrics(),
	}
	tokens := sharing.NewTokenIssuer(strings.Repeat("s", 32), 15*time.Minute)
	attempts := lockout.NewMemory(lockout.Options{Max: 3, Window: time.Minute, Lockout: time.Minute})

	deps := Deps{
		Coordinator: sharing.NewCoordinator(env.reg, env.blobs, sharing.CoordinatorOptions{
			Policy:     security.DefaultPolicy(),
			Retention:  24 * time.Hour,
			BcryptCost: bcrypt.MinCost,
			Attempts:   attempts,
		}),
		Gate: sharing.NewGate(env.reg, env.blobs, sharing.GateOptions{
			SignedURLTTL: time.Hour,
			Tokens:       tokens,
			Attempts:     attempts,
		}),
		Reaper:   sharing.NewReaper(env.reg, env.blobs, sharing.ReaperOptions{}),
		Rooms:    textroom.NewService(textroom.NewMemory(), textroom.NewHub(), o.roomOpts),
		Registry: env.reg,
		Blobs:    env.blobs,
		Metrics:  env.metrics,
	}
	env.srv = New(o.cfg, deps)
	env.h = env.srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

type part struct {
	name, contentType, body string
}

func multipartBody(t *testing.T, name string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		require.NoError(t, mw.WriteField("name", name))
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(w, p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, parts ...part) sharing.UploadResult {
	t.Helper()
	body, ct := multipartBody(t, "quarterly", parts...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rr := e.do(req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res sharing.UploadResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func jsonRequest(method, target string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func jsonDecode(rr *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rr.Body).Decode(v)
}
