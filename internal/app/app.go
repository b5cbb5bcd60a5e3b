// Package app wires configuration into a runnable K-OCR service: stores,
// stage adapters, the pipeline coordinator, the status service, the HTTP
// router, and the expiry sweeper.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/k-ocr/web-corrector/internal/api"
	"github.com/k-ocr/web-corrector/internal/config"
	"github.com/k-ocr/web-corrector/internal/correct"
	"github.com/k-ocr/web-corrector/internal/enhance"
	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/pipeline"
	"github.com/k-ocr/web-corrector/internal/recognize"
	"github.com/k-ocr/web-corrector/internal/render"
	"github.com/k-ocr/web-corrector/internal/stage"
	"github.com/k-ocr/web-corrector/internal/status"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

// App is one fully wired service instance.
type App struct {
	Config      *config.Config
	Log         *observability.Logger
	Repo        job.Repository
	Blobs       tempstore.Store
	Coordinator *pipeline.Coordinator
	Status      *status.Service
	Sweeper     *pipeline.Sweeper
	Router      http.Handler
}

// New builds an App from configuration. Every driver choice (memory vs
// redis, memory vs sqlite) resolves here; nothing downstream knows which
// driver it got.
func New(cfg *config.Config) (*App, error) {
	log := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := newJobRepository(cfg)
	if err != nil {
		blobs.Close()
		return nil, err
	}

	coord, err := pipeline.NewCoordinator(repo, blobs, newAdapters(cfg), pipeline.Config{
		MaxConcurrentJobs: cfg.Pipeline.MaxConcurrentJobs,
		StageTimeout:      cfg.Pipeline.StageTimeout,
		MaxRetries:        cfg.Pipeline.MaxRetries,
		RetryBackoff:      cfg.Pipeline.RetryBackoff,
		JobTTL:            cfg.Jobs.TTL,
	}, log)
	if err != nil {
		repo.Close()
		blobs.Close()
		return nil, err
	}

	statusSvc := status.NewService(repo, blobs)
	router := api.NewRouter(api.Deps{
		Logger:         log,
		Coordinator:    coord,
		Status:         statusSvc,
		Blobs:          blobs,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.ReadTimeout,
	})

	return &App{
		Config:      cfg,
		Log:         log,
		Repo:        repo,
		Blobs:       blobs,
		Coordinator: coord,
		Status:      statusSvc,
		Sweeper:     pipeline.NewSweeper(repo, blobs, cfg.Storage.SweepInterval, log),
		Router:      router,
	}, nil
}

// Run serves HTTP and sweeps until the context is cancelled, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.Sweeper.Run(sweepCtx)

	serverErrors := make(chan error, 1)
	go func() {
		a.Log.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("graceful shutdown failed")
		srv.Close()
	}
	return nil
}

// Close tears the instance down: in-flight jobs get a chance to notice the
// stop, then the stores close.
func (a *App) Close() {
	a.Coordinator.Close()
	if err := a.Repo.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("job repository close failed")
	}
	if err := a.Blobs.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("temp store close failed")
	}
}

func newBlobStore(cfg *config.Config) (tempstore.Store, error) {
	switch cfg.Storage.Driver {
	case "redis":
		return tempstore.NewRedisStore(tempstore.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			PoolSize: cfg.Storage.Redis.PoolSize,
			Prefix:   cfg.Storage.Redis.Prefix,
			BlobTTL:  cfg.Storage.BlobTTL,
		})
	case "memory":
		return tempstore.NewMemoryStore(cfg.Storage.BlobTTL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newJobRepository(cfg *config.Config) (job.Repository, error) {
	switch cfg.Jobs.Driver {
	case "sqlite":
		return job.NewSQLiteRepository(job.SQLiteConfig{
			Path:         cfg.Jobs.SQLite.Path,
			MaxOpenConns: cfg.Jobs.SQLite.MaxOpenConns,
		})
	case "memory":
		return job.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown jobs driver %q", cfg.Jobs.Driver)
	}
}

func newAdapters(cfg *config.Config) pipeline.Adapters {
	tesseract := recognize.NewTesseract(cfg.Engines.TesseractLanguages)
	paddle := recognize.NewPaddleClient(recognize.PaddleConfig{
		BaseURL: cfg.Engines.Paddle.BaseURL,
		Timeout: cfg.Engines.Paddle.Timeout,
	})

	return pipeline.Adapters{
		Renderer: render.NewFitzRenderer(),
		Enhancer: enhance.NewProcessor(),
		Recognizers: map[job.EngineSelector]stage.Recognizer{
			job.EngineTesseract: tesseract,
			job.EnginePaddle:    paddle,
			job.EngineEnsemble:  recognize.NewEnsemble(paddle, tesseract),
		},
		Corrector: correct.NewServiceClient(correct.Config{
			BaseURL: cfg.Correction.BaseURL,
			Timeout: cfg.Correction.Timeout,
		}),
	}
}
