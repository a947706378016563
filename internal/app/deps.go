package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/auth"
	"github.com/ravikeerthi7606/edustream/internal/config"
	"github.com/ravikeerthi7606/edustream/internal/db"
	"github.com/ravikeerthi7606/edustream/internal/repositories"
	"github.com/ravikeerthi7606/edustream/internal/session"
	"github.com/ravikeerthi7606/edustream/internal/storage"
	"github.com/ravikeerthi7606/edustream/internal/upload"
	"github.com/ravikeerthi7606/edustream/internal/videos"
)

// dependencies holds the concrete implementations the commands use.
type dependencies struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *session.KVStore
	gateway *api.Gateway
	auth    *auth.Session
	videos  *videos.Client

	// s3 is built on first use so commands that never read from S3 do not
	// load AWS configuration.
	s3 func(ctx context.Context) (*storage.S3Source, error)
}

// buildDependencies wires together the session store, API gateway and the
// clients built on it. The returned cleanup releases any database pool.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, cleanup, err := sessionBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	store := session.New(backend, logger)

	gateway, err := api.New(api.Options{
		BaseURL:     cfg.APIURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: store,
		Logger:      logger,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	videoClient, err := videos.NewClient(gateway, videos.ClientOptions{
		PerPage: cfg.Catalog.PerPage,
		Logger:  logger,
		Engine: []videos.EngineOption{
			videos.WithStaleTime(cfg.Catalog.StaleTime),
			videos.WithCacheSize(cfg.Catalog.CacheSize),
			videos.WithRetries(cfg.Catalog.Retries),
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var s3Source *storage.S3Source
	deps := &dependencies{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		gateway: gateway,
		auth:    auth.NewSession(gateway, store, logger),
		videos:  videoClient,
		s3: func(ctx context.Context) (*storage.S3Source, error) {
			if s3Source != nil {
				return s3Source, nil
			}
			src, err := storage.NewS3Source(ctx, cfg.ObjectStore, logger)
			if err != nil {
				return nil, err
			}
			s3Source = src
			return src, nil
		},
	}
	return deps, cleanup, nil
}

// newUploadSession starts a fresh upload bound to the gateway and the catalog cache.
func (d *dependencies) newUploadSession(listener upload.Listener) *upload.Session {
	return upload.NewSession(d.gateway, d.videos, upload.Options{
		MaxFileSize: d.cfg.MaxUploadBytes,
		Timeout:     d.cfg.UploadTimeout,
		Logger:      d.logger,
		Listener:    listener,
	})
}

func sessionBackend(ctx context.Context, cfg config.Config) (session.Backend, func(), error) {
	noop := func() {}

	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return session.NewMemoryBackend(), noop, nil
	case config.SessionBackendFile, "":
		backend, err := session.NewFileBackend(cfg.Session.Path, cfg.Session.Key)
		if err != nil {
			return nil, nil, err
		}
		return backend, noop, nil
	case config.SessionBackendPostgres:
		pool, err := db.Connect(ctx, cfg.Session.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		backend, err := repositories.NewPostgresStateStore(pool, cfg.Session.Profile)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return backend, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
	}
}
