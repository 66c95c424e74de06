package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/db"
	"github.com/hide-yama/file-share/internal/lockout"
	"github.com/hide-yama/file-share/internal/logging"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/server"
	"github.com/hide-yama/file-share/internal/sharing"
	"github.com/hide-yama/file-share/internal/textroom"
)

// multipartOverhead is the slack allowed on top of the project size limit
// for multipart boundaries and part headers.
const multipartOverhead = 1 << 20

func main() {
	cfg, v := config.Load()
	if err := cfg.Validate(v); err != nil {
		fmt.Fprintf(os.Stderr, "service=backend msg=%q err=%v\n", "invalid_config", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "service=backend msg=%q err=%v\n", "logger_failed", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", "backend"))

	if err := run(cfg, log); err != nil {
		log.Error("backend stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer func() { _ = dbConn.Close() }()

	log.Info("running migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations complete")

	// Blob store
	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	reg := registry.NewPostgres(dbConn)
	metrics := server.NewMetrics()

	attempts, closeAttempts := newAttemptPolicy(ctx, cfg, log)
	defer closeAttempts()

	coordinator := sharing.NewCoordinator(reg, blobs, sharing.CoordinatorOptions{
		Policy:       cfg.Policy(),
		Retention:    cfg.Retention,
		BcryptCost:   cfg.BcryptCost,
		UploadURLTTL: cfg.SignedURLTTL,
		Attempts:     attempts,
		Logger:       log.Named("upload"),
	})
	gate := sharing.NewGate(reg, blobs, sharing.GateOptions{
		SignedURLTTL: cfg.SignedURLTTL,
		Tokens:       sharing.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL),
		Attempts:     attempts,
		Logger:       log.Named("gate"),
	})
	reaper := sharing.NewReaper(reg, blobs, sharing.ReaperOptions{Logger: log.Named("reaper")})

	broker, closeBroker := newRoomBroker(ctx, cfg, log)
	defer closeBroker()
	rooms := textroom.NewService(textroom.NewPostgres(dbConn), broker, textroom.Options{
		TTL:      cfg.RoomTTL,
		MaxBytes: cfg.RoomMaxBytes,
		Logger:   log.Named("rooms"),
	})

	// Background jobs
	var sched *sharing.Schedule
	if cfg.ReaperSchedule != "" {
		sched, err = sharing.NewSchedule(cfg.ReaperSchedule, log.Named("schedule"),
			sharing.ReaperJob(reaper, metrics.RecordReap),
			sharing.Job{Name: "rooms", Run: rooms.PurgeExpired},
		)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", cfg.ReaperSchedule, err)
		}
		sched.Start()
		log.Info("reaper scheduled", zap.String("spec", cfg.ReaperSchedule))
	} else {
		log.Info("reaper schedule disabled")
	}

	srv := server.New(server.Config{
		Addr:               cfg.Addr,
		Version:            cfg.Version,
		Commit:             cfg.Commit,
		AdminToken:         cfg.AdminToken,
		DownloadMode:       cfg.DownloadMode,
		MaxUploadBytes:     maxUploadBytes(cfg),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, server.Deps{
		Coordinator: coordinator,
		Gate:        gate,
		Reaper:      reaper,
		Rooms:       rooms,
		Registry:    reg,
		Blobs:       blobs,
		Metrics:     metrics,
		Logger:      log.Named("http"),
	})

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting",
			zap.String("addr", cfg.Addr),
			zap.String("version", cfg.Version),
			zap.String("commit", cfg.Commit),
			zap.String("storage", cfg.StorageBackend),
		)
		errCh <- srv.Start(ctx)
	}()

	// Set up signal handling for graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		// Give the server 5 seconds to finish in-flight requests and cleanup.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if sched != nil {
			sched.Stop(shutdownCtx)
		}
		// Open event streams only end with their context.
		stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newAttemptPolicy picks the shared Redis limiter when an address is set,
// otherwise the in-process one.
func newAttemptPolicy(ctx context.Context, cfg config.Config, log *zap.Logger) (sharing.AttemptPolicy, func()) {
	opts := lockout.Options{
		Max:     cfg.AttemptMax,
		Window:  cfg.AttemptWindow,
		Lockout: cfg.AttemptLockout,
	}
	if cfg.RedisAddr != "" {
		client := lockout.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		log.Info("attempt limiter", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
		return lockout.NewRedis(client, opts), func() { _ = client.Close() }
	}

	mem := lockout.NewMemory(opts)
	go mem.Run(ctx, time.Minute)
	log.Info("attempt limiter", zap.String("backend", "memory"))
	return mem, func() {}
}

// newRoomBroker listens for room changes made by any instance. Without a
// listener connection, rooms still work but only see writes made here.
func newRoomBroker(ctx context.Context, cfg config.Config, log *zap.Logger) (textroom.Broker, func()) {
	b, err := textroom.NewPGBroker(cfg.DatabaseURL, log.Named("rooms"))
	if err != nil {
		log.Warn("room listener unavailable, using in-process broker", zap.Error(err))
		return textroom.NewHub(), func() {}
	}
	go b.Run(ctx)
	return b, func() { _ = b.Close() }
}

// maxUploadBytes caps one multipart request at the project limit plus
// framing overhead.
func maxUploadBytes(cfg config.Config) int64 {
	return cfg.MaxProjectBytes + multipartOverhead
}
