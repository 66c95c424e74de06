package server

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/sharing"
	"github.com/hide-yama/file-share/internal/textroom"
)

type Config struct {
	Addr    string // e.g. ":8080"
	Version string
	Commit  string

	AdminToken   string
	DownloadMode string // config.DownloadStream or config.DownloadRedirect

	// MaxUploadBytes caps a multipart request body. Zero means no cap.
	MaxUploadBytes     int64
	RateLimitPerMinute int

	// TrustedProxies may set X-Forwarded-For and X-Real-IP. Requests from
	// anyone else are attributed to their socket address.
	TrustedProxies []netip.Prefix
}

// Deps are the services behind the routes. Rooms may be nil, in which case
// the room routes are not mounted.
type Deps struct {
	Coordinator *sharing.Coordinator
	Gate        *sharing.Gate
	Reaper      *sharing.Reaper
	Rooms       *textroom.Service
	Registry    registry.Registry
	Blobs       blobstore.Store
	Metrics     *Metrics
	Logger      *zap.Logger
}

type Server struct {
	cfg        Config
	deps       Deps
	log        *zap.Logger
	metrics    *Metrics
	limiter    *rateLimiter
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if cfg.DownloadMode == "" {
		cfg.DownloadMode = config.DownloadStream
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		metrics: deps.Metrics,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	// Wrap middleware: requestID -> logging -> security headers -> rate limit -> mux
	var handler http.Handler = mux
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		handler = s.limiter.middleware(handler, s.clientIP)
	}
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /upload/direct", s.handleReserve)
	mux.HandleFunc("POST /upload/direct/{id}/complete", s.handleComplete)

	mux.HandleFunc("POST /projects/{id}", s.handleListProject)
	mux.HandleFunc("GET /projects/{id}/files/{filename}/url", s.handleSignedURL)
	mux.HandleFunc("GET /download/{id}/{filename}", s.handleDownload)

	mux.Handle("GET /admin/cleanup", s.requireAdmin(http.HandlerFunc(s.handleCleanupPreview)))
	mux.Handle("POST /admin/cleanup", s.requireAdmin(http.HandlerFunc(s.handleCleanupExecute)))

	if s.deps.Rooms != nil {
		mux.HandleFunc("POST /rooms", s.handleCreateRoom)
		mux.HandleFunc("GET /rooms/{code}", s.handleGetRoom)
		mux.HandleFunc("PUT /rooms/{code}", s.handleUpdateRoom)
		mux.HandleFunc("GET /rooms/{code}/events", s.handleRoomEvents)
	}
}

// Handler exposes the wrapped mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. It also runs the rate limiter's
// sweep loop, which ends with ctx.
func (s *Server) Start(ctx context.Context) error {
	if s.limiter != nil {
		go s.limiter.run(ctx, time.Minute)
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
