// Command reaper runs one expiry pass and exits. It is meant for a system
// cron or a Kubernetes CronJob when SFD_REAPER_DISABLED is set on the
// backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/blobstore"
	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/db"
	"github.com/hide-yama/file-share/internal/logging"
	"github.com/hide-yama/file-share/internal/registry"
	"github.com/hide-yama/file-share/internal/sharing"
	"github.com/hide-yama/file-share/internal/textroom"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be removed without deleting anything")
	timeout := flag.Duration("timeout", 10*time.Minute, "give up after this long")
	flag.Parse()

	cfg, v := config.Load()
	if err := cfg.ValidateWorker(v); err != nil {
		fmt.Fprintf(os.Stderr, "service=reaper msg=%q err=%v\n", "invalid_config", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "service=reaper msg=%q err=%v\n", "logger_failed", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", "reaper"))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sum, err := run(ctx, cfg, log, *dryRun)
	if err != nil {
		log.Error("reaper run failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	if err := writeSummary(os.Stdout, sum); err != nil {
		log.Error("write summary", zap.Error(err))
	}
	if sum.FileFailures > 0 || sum.ProjectFailures > 0 {
		_ = log.Sync()
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, dryRun bool) (*sharing.ReapSummary, error) {
	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	defer func() { _ = dbConn.Close() }()

	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	reaper := sharing.NewReaper(registry.NewPostgres(dbConn), blobs, sharing.ReaperOptions{Logger: log})
	if dryRun {
		return reaper.Preview(ctx)
	}

	sum, err := reaper.Execute(ctx)
	if err != nil {
		return sum, err
	}

	// Expired text rooms go in the same pass.
	rooms := textroom.NewService(textroom.NewPostgres(dbConn), textroom.NewHub(), textroom.Options{Logger: log})
	if err := rooms.PurgeExpired(ctx); err != nil {
		log.Warn("room purge failed", zap.Error(err))
	}
	return sum, nil
}

func writeSummary(w io.Writer, sum *sharing.ReapSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
