// Package pipeline drives stored records through the download and upload stages.
// Each tick re-reads the store; the store is the only source of truth for progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/zoomsync/backend/internal/inflight"
	"github.com/zoomsync/backend/internal/metadata"
	"github.com/zoomsync/backend/internal/metrics"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/pkg/queue"
)

const (
	DefaultMinDuration  = 5
	DefaultMaxAttempts  = 3
	DefaultConcurrency  = 4
	DefaultRetryBackoff = 10 * time.Second
)

var (
	// ErrNoCredential is returned by an UploaderSource when no upload credential has been stored yet.
	ErrNoCredential = errors.New("no upload credential")
	// ErrBusy is returned when an operator action targets a record that is being processed.
	ErrBusy = errors.New("record is in flight")
	// ErrUnknownStage is returned for a stage other than download or upload.
	ErrUnknownStage = errors.New("unknown stage")
)

// Downloader fetches a remote file into dst.
type Downloader interface {
	Fetch(ctx context.Context, dst, url, token string) error
}

// Uploader publishes a local file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, path string, meta models.UploadMetadata) (string, error)
}

// UploaderSource produces the Uploader lazily, once credentials exist.
type UploaderSource interface {
	Uploader(ctx context.Context) (Uploader, error)
}

// StaticSource wraps an Uploader that needs no bootstrap.
type StaticSource struct{ U Uploader }

// Uploader implements UploaderSource.
func (s StaticSource) Uploader(context.Context) (Uploader, error) { return s.U, nil }

// DeadLetters receives records that exhausted their retries.
type DeadLetters interface {
	Push(ctx context.Context, e queue.Entry) error
}

// Deps are the collaborators of a Pipeline. Uploads and DeadLetters are optional.
type Deps struct {
	Events      store.Store[models.Event]
	Records     store.Store[models.Record]
	Guard       inflight.Guard
	Downloader  Downloader
	Uploads     UploaderSource
	DeadLetters DeadLetters
	Builder     metadata.Builder
	Logger      *zap.Logger
}

// Options tune validation and stage execution.
type Options struct {
	MinDuration       int // minutes
	MaxAttempts       int
	Concurrency       int
	RetryBackoff      time.Duration
	DeleteAfterUpload bool
}

func (o Options) withDefaults() Options {
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultMinDuration
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	return o
}

// Pipeline owns the in-flight guard and the lazily bootstrapped uploader.
type Pipeline struct {
	events     store.Store[models.Event]
	records    store.Store[models.Record]
	guard      inflight.Guard
	downloader Downloader
	uploads    UploaderSource
	dlq        DeadLetters
	builder    metadata.Builder
	opts       Options
	logger     *zap.Logger

	mu       sync.Mutex
	uploader Uploader

	// ticking admits one tick at a time, whether scheduled or manual.
	ticking chan struct{}
}

// New validates deps and returns a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Events == nil || deps.Records == nil {
		return nil, errors.New("pipeline: event and record stores are required")
	}
	if deps.Downloader == nil {
		return nil, errors.New("pipeline: downloader is required")
	}
	if deps.Guard == nil {
		deps.Guard = inflight.NewSet()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{
		events:     deps.Events,
		records:    deps.Records,
		guard:      deps.Guard,
		downloader: deps.Downloader,
		uploads:    deps.Uploads,
		dlq:        deps.DeadLetters,
		builder:    deps.Builder,
		opts:       opts.withDefaults(),
		logger:     deps.Logger,
		ticking:    make(chan struct{}, 1),
	}, nil
}

// Tick runs one polling pass: finish expanding events, then the download stage, then the upload stage.
// It returns once every dispatched item has settled. Ticks never overlap: a tick started while
// another runs waits for it, or returns the context error if ctx ends first.
func (p *Pipeline) Tick(ctx context.Context) error {
	select {
	case p.ticking <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.ticking }()

	var errs []error
	if err := p.expandPending(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.runDownloads(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.runUploads(ctx); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	metrics.IncTick(err == nil)
	return err
}

// Recover fails records that were left loading by a process that stopped mid-download.
// Records currently held by another process are skipped.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	recs, err := p.records.Read(ctx, store.Filter{models.FieldDownloadState: string(models.DownloadLoading)})
	if err != nil {
		return 0, fmt.Errorf("read loading records: %w", err)
	}
	n := 0
	for i := range recs {
		id := recs[i].ID.String()
		if !p.guard.TryAcquire(ctx, id) {
			continue
		}
		rec, err := p.reload(ctx, id)
		if err == nil && rec.DownloadState != models.DownloadLoading {
			p.guard.Release(ctx, id)
			continue
		}
		if err == nil {
			err = rec.Interrupt("interrupted: process stopped during download")
		}
		if err == nil {
			err = p.records.Update(ctx, rec)
		}
		p.guard.Release(ctx, id)
		if err != nil {
			return n, fmt.Errorf("recover record %s: %w", id, err)
		}
		n++
		p.logger.Warn("interrupted download marked failed", zap.String("record_id", id), zap.String("filename", rec.Filename))
	}
	return n, nil
}

// Retry re-arms a failed stage of a record. The next tick picks it up.
func (p *Pipeline) Retry(ctx context.Context, id string, stage queue.Stage) (*models.Record, error) {
	if !p.guard.TryAcquire(ctx, id) {
		return nil, ErrBusy
	}
	defer p.guard.Release(context.WithoutCancel(ctx), id)
	rec, err := p.reload(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	switch stage {
	case queue.StageDownload:
		err = rec.RetryDownload()
	case queue.StageUpload:
		err = rec.RetryUpload()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if err != nil {
		return nil, err
	}
	if err := p.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist retry: %w", err)
	}
	p.logger.Info("record re-armed", zap.String("record_id", id), zap.String("stage", string(stage)))
	return rec, nil
}

// retry runs op with bounded exponential backoff and reports how many attempts were made.
func (p *Pipeline) retry(ctx context.Context, op func() error) (int, error) {
	attempts := 0
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryBackoff
	b.MaxInterval = 10 * p.opts.RetryBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Debug("stage attempt failed, retrying", zap.Int("attempt", attempts), zap.Duration("next", next), zap.Error(err))
		}),
	)
	return attempts, err
}

func (p *Pipeline) deadLetter(ctx context.Context, rec *models.Record, stage queue.Stage, attempts int) {
	if p.dlq == nil {
		return
	}
	err := p.dlq.Push(ctx, queue.Entry{
		RecordID: rec.ID,
		EventID:  rec.EventID,
		Stage:    stage,
		Filename: rec.Filename,
		Reason:   rec.Error,
		Attempts: attempts,
	})
	if err != nil {
		p.logger.Error("dlq push failed", zap.String("record_id", rec.ID.String()), zap.Error(err))
	}
}
