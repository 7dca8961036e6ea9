// Package bootstrap provides dependency initialization for the episode-drop server.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/maauso/episode-drop/internal/config"
	"github.com/maauso/episode-drop/internal/episode"
	"github.com/maauso/episode-drop/internal/oauth"
	"github.com/maauso/episode-drop/internal/server"
	"github.com/maauso/episode-drop/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *episode.Service
	// OAuth is nil when no Google client is configured.
	OAuth server.OAuthClient
	// StorageObjects serves direct uploads for the local backend; nil otherwise.
	StorageObjects http.Handler
	// Metrics is nil when metrics are disabled.
	Metrics http.Handler
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	var observer storage.Observer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		obs, err := storage.NewPrometheusObserver("episode_storage", reg)
		if err != nil {
			return nil, fmt.Errorf("create storage metrics: %w", err)
		}
		observer = obs
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	oauthCfg := oauth.NewConfig(oauth.Settings{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURI(),
	})
	if cfg.OAuthEnabled() {
		deps.OAuth = oauth.NewClient(oauthCfg)
	}

	provider, err := initStorage(cfg, oauthCfg, deps, logger)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		provider = storage.Instrument(provider, observer)
	}

	deps.Service = episode.NewService(provider, logger,
		episode.WithListingMode(episode.ListingMode(cfg.ListingMode)),
	)
	return deps, nil
}

// initStorage creates the appropriate storage backend based on configuration.
// It returns a nil provider when the drive backend has no refresh token yet.
func initStorage(cfg *config.Config, oauthCfg *oauth2.Config, deps *Dependencies, logger *slog.Logger) (storage.Provider, error) {
	switch cfg.Backend {
	case config.BackendS3:
		s3Store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
			UploadTTL:       cfg.UploadURLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil

	case config.BackendLocal:
		localStore, err := storage.NewLocalStorage(cfg.LocalDir, cfg.PublicURL, cfg.UploadURLTTL)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		deps.StorageObjects = localStore.Handler()
		logger.Info("local storage configured",
			slog.String("dir", localStore.BaseDir()),
		)
		return localStore, nil

	default:
		if cfg.GoogleRefreshToken == "" {
			logger.Warn("GOOGLE_REFRESH_TOKEN not set; authorize via /api/auth/url")
			return nil, nil
		}
		driveStore, err := storage.NewDriveStorage(storage.DriveConfig{
			RootFolderID: cfg.DriveFolderID,
			Token:        oauth.Minter(oauthCfg, cfg.GoogleRefreshToken),
		})
		if err != nil {
			return nil, fmt.Errorf("create drive storage: %w", err)
		}
		logger.Info("drive storage configured",
			slog.String("folder_id", cfg.DriveFolderID),
		)
		return driveStore, nil
	}
}
