// Package app wires configuration into the stores, the pipeline and the scheduler shared by
// the server and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zoomsync/backend/config"
	"github.com/zoomsync/backend/internal/download"
	"github.com/zoomsync/backend/internal/inflight"
	"github.com/zoomsync/backend/internal/metadata"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/oauth"
	"github.com/zoomsync/backend/internal/pipeline"
	"github.com/zoomsync/backend/internal/recordings"
	"github.com/zoomsync/backend/internal/scheduler"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/internal/youtube"
	"github.com/zoomsync/backend/pkg/database"
	"github.com/zoomsync/backend/pkg/queue"
	"github.com/zoomsync/backend/pkg/redis"
	"github.com/zoomsync/backend/pkg/storage"
)

// App holds the long-lived components of one process.
type App struct {
	Config      *config.Config
	Events      store.Store[models.Event]
	Records     store.Store[models.Record]
	Credentials store.Credentials
	Pipeline    *pipeline.Pipeline
	Scheduler   *scheduler.Scheduler
	DeadLetters *queue.Queue   // nil without Redis
	OAuth       *oauth2.Config // nil unless uploading to YouTube

	logger  *zap.Logger
	closers []func()

	// runCtx parents every tick, scheduled or manual. Shutdown cancels it once its deadline passes.
	runCtx    context.Context
	cancelRun context.CancelFunc
	waiters   []func()
}

// New connects the configured backends and builds the pipeline. On failure it releases
// whatever it had opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}
	a.runCtx, a.cancelRun = context.WithCancel(context.Background())
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if err := os.MkdirAll(cfg.Storage.DirPath, 0o755); err != nil {
		return fmt.Errorf("storage dir: %w", err)
	}
	loc, err := cfg.Storage.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	if err := a.openStores(ctx); err != nil {
		return err
	}
	rdb, err := a.openRedis(ctx)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Events:     a.Events,
		Records:    a.Records,
		Downloader: download.NewClient(nil, a.logger.Named("download")),
		Logger:     a.logger.Named("pipeline"),
	}
	if rdb != nil {
		a.DeadLetters = queue.NewQueue(rdb.Client, a.logger.Named("dlq"))
		deps.DeadLetters = a.DeadLetters
	}
	switch cfg.Pipeline.GuardDriver {
	case config.GuardRedis:
		deps.Guard = inflight.NewRedisGuard(rdb.Client, uuid.NewString(), inflight.DefaultLeaseTTL, a.logger.Named("inflight"))
	default:
		deps.Guard = inflight.NewSet()
	}
	if deps.Uploads, err = a.uploadSource(ctx); err != nil {
		return err
	}

	deps.Builder = metadata.NewBuilder(cfg.Storage.DirPath, loc)
	deps.Builder.MaxClassified = cfg.Storage.MaxTopicLength
	deps.Builder.MaxOther = cfg.Storage.MaxOtherLength
	deps.Builder.MaxTutor = cfg.Storage.MaxTutorLength

	a.Pipeline, err = pipeline.New(deps, pipeline.Options{
		MinDuration:       cfg.Pipeline.MinDuration,
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		Concurrency:       cfg.Pipeline.Concurrency,
		RetryBackoff:      cfg.Pipeline.RetryBackoff,
		DeleteAfterUpload: cfg.Pipeline.DeleteAfterUpload,
	})
	if err != nil {
		return err
	}

	a.Scheduler, err = scheduler.New(a.Pipeline.Tick, cfg.Pipeline.Period, cfg.Pipeline.Delay, a.logger.Named("scheduler"))
	return err
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.Storage.Driver == config.StoreMemory {
		a.Events = store.NewMemory[models.Event, *models.Event]()
		a.Records = store.NewMemory[models.Record, *models.Record]()
		a.Credentials = store.NewMemoryCredentials()
		a.logger.Warn("using in-memory store; state is lost on restart")
		return nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolConfig{
		MaxConns: int32(cfg.Database.MaxConns),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := database.Migrate(ctx, pool, a.logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Events = recordings.NewEventRepository(pool)
	a.Records = recordings.NewRecordRepository(pool)
	a.Credentials = recordings.NewCredentialRepository(pool)
	return nil
}

// openRedis returns nil when Redis is not needed and unreachable.
func (a *App) openRedis(ctx context.Context) (*redis.Client, error) {
	cfg := a.Config
	required := cfg.Pipeline.GuardDriver == config.GuardRedis
	if cfg.Redis.Addr == "" {
		if required {
			return nil, errors.New("redis: REDIS_ADDR is required when GUARD_DRIVER=redis")
		}
		return nil, nil
	}
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, a.logger)
	if err != nil {
		if required {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.logger.Warn("redis disabled; dead letters are not recorded", zap.Error(err))
		return nil, nil
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

func (a *App) uploadSource(ctx context.Context) (pipeline.UploaderSource, error) {
	cfg := a.Config
	switch cfg.Pipeline.UploadTarget {
	case config.UploadYouTube:
		a.OAuth = oauth.NewConfig(cfg.YouTube.ClientID, cfg.YouTube.ClientSecret, cfg.YouTube.RedirectURL)
		return youtube.NewSource(a.Credentials, a.OAuth, cfg.YouTube.Privacy, a.logger.Named("youtube")), nil
	case config.UploadS3:
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:           cfg.AWS.Region,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			RecordingsBucket: cfg.AWS.RecordingsBucket,
			Endpoint:         cfg.AWS.Endpoint,
		}, a.logger.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return pipeline.StaticSource{U: s3}, nil
	default:
		a.logger.Info("upload stage disabled")
		return nil, nil
	}
}

// Start fails downloads left over by a previous process, then starts polling.
// Cancelling ctx later also cancels the running tick.
func (a *App) Start(ctx context.Context) error {
	n, err := a.Pipeline.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	if n > 0 {
		a.logger.Warn("recovered interrupted downloads", zap.Int("count", n))
	}
	context.AfterFunc(ctx, a.cancelRun)
	a.Scheduler.Start(a.runCtx)
	a.logger.Info("scheduler started",
		zap.Duration("period", a.Config.Pipeline.Period),
		zap.Duration("delay", a.Config.Pipeline.Delay))
	return nil
}

// Shutdown stops polling and waits for the running tick and any manual runs. If ctx ends
// first, the runs are cancelled and Shutdown still waits for them to persist their outcome
// before returning ctx's error, so Close never pulls a connection from under a tick.
func (a *App) Shutdown(ctx context.Context) error {
	defer a.cancelRun()

	var err error
	if a.Scheduler != nil {
		if err = a.Scheduler.Shutdown(ctx); err != nil {
			a.logger.Warn("tick still running at deadline, cancelling", zap.Error(err))
			a.cancelRun()
			<-a.Scheduler.Done()
		}
	}

	settled := make(chan struct{})
	go func() {
		defer close(settled)
		for _, wait := range a.waiters {
			wait()
		}
	}()
	select {
	case <-settled:
	case <-ctx.Done():
		a.logger.Warn("manual runs still running at deadline, cancelling", zap.Error(ctx.Err()))
		a.cancelRun()
		<-settled
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	a.cancelRun()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
