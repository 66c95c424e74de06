// Package config loads service configuration from the environment and
// validates it up front, so a bad deployment fails at startup with every
// problem listed rather than at the first request that trips over one.
package config

import (
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/hide-yama/file-share/internal/logging"
	"github.com/hide-yama/file-share/internal/security"
)

// Storage backends.
const (
	BackendMinio = "minio"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// Download modes.
const (
	DownloadStream   = "stream"
	DownloadRedirect = "redirect"
)

// Config is the full runtime configuration.
type Config struct {
	Addr        string
	BaseURL     string
	DatabaseURL string
	Version     string
	Commit      string

	// Upload admission.
	MaxFiles        int
	MaxFileBytes    int64
	MaxProjectBytes int64
	Retention       time.Duration
	BcryptCost      int

	// Access.
	AdminToken         string
	SignedURLTTL       time.Duration
	DownloadMode       string
	TokenSecret        string
	TokenTTL           time.Duration
	AttemptMax         int
	AttemptWindow      time.Duration
	AttemptLockout     time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the headers are ignored.
	TrustedProxies []netip.Prefix

	// Storage.
	StorageBackend     string
	Bucket             string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Region           string
	GCSCredentialsFile string
	GCSAccessID        string
	GCSPrivateKey      string

	// Background work.
	ReaperSchedule string
	RoomTTL        time.Duration
	RoomMaxBytes   int

	Log logging.Options
}

// Load reads the environment into a Config. Parse errors are collected on
// the returned validator so Validate can report them together with the
// semantic checks.
func Load() (Config, *Validator) {
	v := &Validator{}

	cfg := Config{
		Addr:        v.String("SFD_ADDR", ":8080"),
		BaseURL:     strings.TrimRight(v.String("SFD_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     v.String("SFD_VERSION", "dev"),
		Commit:      v.String("SFD_COMMIT", "unknown"),

		MaxFiles:        v.Int("SFD_MAX_FILES", security.DefaultMaxFiles),
		MaxFileBytes:    v.Int64("SFD_MAX_FILE_BYTES", security.DefaultMaxFileSize),
		MaxProjectBytes: v.Int64("SFD_MAX_PROJECT_BYTES", security.DefaultMaxProjectSize),
		Retention:       v.Duration("SFD_RETENTION", 7*24*time.Hour),
		BcryptCost:      v.Int("SFD_BCRYPT_COST", 12),

		AdminToken:         os.Getenv("SFD_ADMIN_TOKEN"),
		SignedURLTTL:       v.Duration("SFD_SIGNED_URL_TTL", time.Hour),
		DownloadMode:       v.String("SFD_DOWNLOAD_MODE", DownloadStream),
		TokenSecret:        os.Getenv("SFD_TOKEN_SECRET"),
		TokenTTL:           v.Duration("SFD_TOKEN_TTL", 15*time.Minute),
		AttemptMax:         v.Int("SFD_ATTEMPT_MAX", 5),
		AttemptWindow:      v.Duration("SFD_ATTEMPT_WINDOW", 10*time.Minute),
		AttemptLockout:     v.Duration("SFD_ATTEMPT_LOCKOUT", 15*time.Minute),
		RedisAddr:          os.Getenv("SFD_REDIS_ADDR"),
		RedisPassword:      os.Getenv("SFD_REDIS_PASSWORD"),
		RedisDB:            v.Int("SFD_REDIS_DB", 0),
		RateLimitPerMinute: v.Int("SFD_RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     v.Prefixes("SFD_TRUSTED_PROXIES"),

		StorageBackend:     v.String("SFD_STORAGE_BACKEND", BackendMinio),
		Bucket:             os.Getenv("SFD_BUCKET"),
		S3Endpoint:         os.Getenv("SFD_S3_ENDPOINT"),
		S3AccessKey:        os.Getenv("SFD_S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("SFD_S3_SECRET_KEY"),
		S3Region:           v.String("SFD_S3_REGION", "us-east-1"),
		GCSCredentialsFile: os.Getenv("SFD_GCS_CREDENTIALS_FILE"),
		GCSAccessID:        os.Getenv("SFD_GCS_ACCESS_ID"),
		GCSPrivateKey:      os.Getenv("SFD_GCS_PRIVATE_KEY"),

		ReaperSchedule: v.String("SFD_REAPER_SCHEDULE", "@every 1h"),
		RoomTTL:        v.Duration("SFD_ROOM_TTL", 24*time.Hour),
		RoomMaxBytes:   v.Int("SFD_ROOM_MAX_BYTES", 64*1024),

		Log: logging.Options{
			Level:      v.String("SFD_LOG_LEVEL", "info"),
			Format:     v.String("SFD_LOG_FORMAT", "json"),
			Path:       os.Getenv("SFD_LOG_PATH"),
			MaxSizeMB:  v.Int("SFD_LOG_MAX_SIZE_MB", 100),
			MaxBackups: v.Int("SFD_LOG_MAX_BACKUPS", 3),
			MaxAgeDays: v.Int("SFD_LOG_MAX_AGE_DAYS", 7),
			Compress:   v.Bool("SFD_LOG_COMPRESS", false),
		},
	}

	// SFD_REAPER_DISABLED turns the in-process schedule off when the reaper
	// is driven externally (cmd/reaper from a system cron).
	if v.Bool("SFD_REAPER_DISABLED", false) {
		cfg.ReaperSchedule = ""
	}

	return cfg, v
}

// Validate checks everything the HTTP service needs.
func (c Config) Validate(v *Validator) error {
	c.validateCore(v)

	v.Required("SFD_ADMIN_TOKEN", c.AdminToken)
	v.MinLength("SFD_ADMIN_TOKEN", c.AdminToken, 16)
	v.Required("SFD_TOKEN_SECRET", c.TokenSecret)
	v.MinLength("SFD_TOKEN_SECRET", c.TokenSecret, 32)
	v.URL("SFD_BASE_URL", c.BaseURL)
	v.Enum("SFD_DOWNLOAD_MODE", c.DownloadMode, []string{DownloadStream, DownloadRedirect})
	v.PositiveDuration("SFD_SIGNED_URL_TTL", c.SignedURLTTL)
	v.PositiveDuration("SFD_TOKEN_TTL", c.TokenTTL)
	v.Positive("SFD_ATTEMPT_MAX", int64(c.AttemptMax))
	v.PositiveDuration("SFD_ATTEMPT_WINDOW", c.AttemptWindow)
	v.PositiveDuration("SFD_ATTEMPT_LOCKOUT", c.AttemptLockout)
	v.Positive("SFD_RATE_LIMIT_PER_MINUTE", int64(c.RateLimitPerMinute))
	v.PositiveDuration("SFD_ROOM_TTL", c.RoomTTL)
	v.Positive("SFD_ROOM_MAX_BYTES", int64(c.RoomMaxBytes))
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		v.AddError("SFD_BCRYPT_COST", "must be between 4 and 31")
	}

	return v.Err()
}

// ValidateWorker checks only what an out-of-band reaper run needs.
func (c Config) ValidateWorker(v *Validator) error {
	c.validateCore(v)
	return v.Err()
}

func (c Config) validateCore(v *Validator) {
	v.Required("DATABASE_URL", c.DatabaseURL)
	if c.DatabaseURL != "" &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
	}

	v.Required("SFD_BUCKET", c.Bucket)
	v.Positive("SFD_MAX_FILES", int64(c.MaxFiles))
	v.Positive("SFD_MAX_FILE_BYTES", c.MaxFileBytes)
	v.Positive("SFD_MAX_PROJECT_BYTES", c.MaxProjectBytes)
	v.PositiveDuration("SFD_RETENTION", c.Retention)

	v.Enum("SFD_STORAGE_BACKEND", c.StorageBackend, []string{BackendMinio, BackendS3, BackendGCS})
	switch c.StorageBackend {
	case BackendMinio, BackendS3:
		v.Required("SFD_S3_ENDPOINT", c.S3Endpoint)
		v.Required("SFD_S3_ACCESS_KEY", c.S3AccessKey)
		v.Required("SFD_S3_SECRET_KEY", c.S3SecretKey)
	case BackendGCS:
		v.Required("SFD_GCS_ACCESS_ID", c.GCSAccessID)
		v.Required("SFD_GCS_PRIVATE_KEY", c.GCSPrivateKey)
	}

	v.Enum("SFD_LOG_FORMAT", c.Log.Format, []string{"json", "text"})
	v.Enum("SFD_LOG_LEVEL", c.Log.Level, []string{"debug", "info", "warn", "error"})
}

// Policy returns the upload admission limits.
func (c Config) Policy() security.Policy {
	return security.Policy{
		MaxFiles:       c.MaxFiles,
		MaxFileSize:    c.MaxFileBytes,
		MaxProjectSize: c.MaxProjectBytes,
	}
}
