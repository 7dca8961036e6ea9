// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Backend selects the storage provider implementation.
type Backend string

const (
	// BackendDrive stores episodes in Google Drive.
	BackendDrive Backend = "drive"
	// BackendS3 stores episodes in an S3 bucket.
	BackendS3 Backend = "s3"
	// BackendLocal stores episodes on local disk and serves direct uploads itself.
	BackendLocal Backend = "local"
)

// ListingMode controls how the submission lister reacts to a broken descriptor.
type ListingMode string

const (
	// ListingPartial returns every readable submission plus per-item errors.
	ListingPartial ListingMode = "partial"
	// ListingStrict returns an empty listing when any descriptor fails.
	ListingStrict ListingMode = "strict"
)

// Static errors for configuration validation.
var (
	// ErrUnknownBackend is returned when STORAGE_BACKEND is not drive, s3 or local.
	ErrUnknownBackend = errors.New("config: STORAGE_BACKEND must be one of drive, s3, local")
	// ErrUnknownListingMode is returned when LISTING_MODE is not partial or strict.
	ErrUnknownListingMode = errors.New("config: LISTING_MODE must be partial or strict")
	// ErrDriveFolderRequired is returned when the drive backend has no root folder.
	ErrDriveFolderRequired = errors.New("config: GOOGLE_DRIVE_FOLDER_ID is required for the drive backend")
	// ErrGoogleClientRequired is returned when the drive backend has no OAuth client.
	ErrGoogleClientRequired = errors.New("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for the drive backend")
	// ErrS3BucketRequired is returned when the s3 backend has no bucket or region.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
	// ErrLocalDirRequired is returned when the local backend has no directory.
	ErrLocalDirRequired = errors.New("config: LOCAL_STORAGE_DIR is required for the local backend")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port      int    `env:"PORT, default=8080" json:"port"`
	PublicURL string `env:"PUBLIC_URL, default=http://localhost:8080" json:"public_url"`

	// Storage settings
	Backend      Backend       `env:"STORAGE_BACKEND, default=drive" json:"storage_backend"`
	UploadURLTTL time.Duration `env:"UPLOAD_URL_TTL, default=15m" json:"upload_url_ttl"`
	ListingMode  ListingMode   `env:"LISTING_MODE, default=partial" json:"listing_mode"`

	// Google Drive settings
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID" json:"google_client_id,omitempty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET" json:"-"` // Masked in JSON
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI" json:"google_redirect_uri,omitempty"`
	GoogleRefreshToken string `env:"GOOGLE_REFRESH_TOKEN" json:"-"` // Masked in JSON
	DriveFolderID      string `env:"GOOGLE_DRIVE_FOLDER_ID" json:"drive_folder_id,omitempty"`

	// S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Local settings
	LocalDir string `env:"LOCAL_STORAGE_DIR, default=/tmp/episode-drop" json:"local_dir"`

	// HTTP settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	CookieSecure   bool     `env:"COOKIE_SECURE, default=false" json:"cookie_secure"`
	MetricsEnabled bool     `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// LoadDotEnv loads .env.local and .env into the process environment when present.
// Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected backend has everything it needs.
// A missing GOOGLE_REFRESH_TOKEN is not a startup error: the server starts
// and reports itself as not configured on each request.
func (c *Config) Validate() error {
	switch c.ListingMode {
	case ListingPartial, ListingStrict:
	default:
		return ErrUnknownListingMode
	}

	switch c.Backend {
	case BackendDrive:
		if c.DriveFolderID == "" {
			return ErrDriveFolderRequired
		}
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return ErrGoogleClientRequired
		}
	case BackendS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3BucketRequired
		}
	case BackendLocal:
		if c.LocalDir == "" {
			return ErrLocalDirRequired
		}
	default:
		return ErrUnknownBackend
	}
	return nil
}

// OAuthEnabled returns true if an OAuth client is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// RedirectURI returns GOOGLE_REDIRECT_URI, defaulting to the callback route
// under PUBLIC_URL.
func (c *Config) RedirectURI() string {
	if c.GoogleRedirectURI != "" {
		return c.GoogleRedirectURI
	}
	return strings.TrimRight(c.PublicURL, "/") + "/api/auth/callback/google"
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, PublicURL: %s, Backend: %s, ListingMode: %s, DriveFolderID: %s, RefreshTokenSet: %t, S3Bucket: %s, S3Region: %s, LocalDir: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicURL,
		c.Backend,
		c.ListingMode,
		c.DriveFolderID,
		c.GoogleRefreshToken != "",
		c.S3Bucket,
		c.S3Region,
		c.LocalDir,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
