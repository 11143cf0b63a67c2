package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoomsync/backend/internal/metrics"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/pkg/queue"
)

// dispatch runs fn for every record the guard lets through, at most Concurrency at a time.
// Candidates were read before the guard was taken, so each one is read again under the guard
// and skipped unless eligible still holds; another tick or process may have moved it on.
// The guard is released after fn returns, which is after the outcome was persisted.
func (p *Pipeline) dispatch(ctx context.Context, stage queue.Stage, recs []models.Record, eligible func(*models.Record) bool, fn func(context.Context, *models.Record)) {
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i := range recs {
		id := recs[i].ID.String()
		if !p.guard.TryAcquire(ctx, id) {
			p.logger.Debug("record already in flight", zap.String("record_id", id), zap.String("stage", string(stage)))
			continue
		}
		metrics.TrackInFlight(string(stage), 1)
		g.Go(func() error {
			defer func() {
				p.guard.Release(context.WithoutCancel(ctx), id)
				metrics.TrackInFlight(string(stage), -1)
			}()
			rec, err := p.reload(ctx, id)
			if err != nil {
				p.logger.Error("reload record failed", zap.String("record_id", id), zap.Error(err))
				return nil
			}
			if !eligible(rec) {
				p.logger.Debug("record moved on since it was read", zap.String("record_id", id), zap.String("stage", string(stage)))
				return nil
			}
			fn(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) reload(ctx context.Context, id string) (*models.Record, error) {
	recs, err := p.records.Read(ctx, store.Filter{"id": id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return &recs[0], nil
}

func downloadable(r *models.Record) bool {
	return r.DownloadState == models.DownloadReady
}

func uploadable(r *models.Record) bool {
	return r.DownloadState == models.DownloadSuccess && r.UploadState == models.UploadReady
}

func (p *Pipeline) runDownloads(ctx context.Context) error {
	recs, err := p.records.Read(ctx, store.Filter{models.FieldDownloadState: string(models.DownloadReady)})
	if err != nil {
		return fmt.Errorf("read download candidates: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	p.logger.Info("download stage", zap.Int("candidates", len(recs)))
	p.dispatch(ctx, queue.StageDownload, recs, downloadable, p.download)
	return nil
}

func (p *Pipeline) download(ctx context.Context, rec *models.Record) {
	log := p.logger.With(zap.String("record_id", rec.ID.String()), zap.String("filename", rec.Filename))
	if err := rec.StartDownload(); err != nil {
		log.Warn("skip download", zap.Error(err))
		return
	}
	if err := p.records.Update(ctx, rec); err != nil {
		log.Error("persist loading state failed", zap.Error(err))
		return
	}

	start := time.Now()
	attempts, err := p.retry(ctx, func() error {
		return p.downloader.Fetch(ctx, rec.FilePath, rec.DownloadURL, rec.DownloadToken)
	})
	persistCtx := context.WithoutCancel(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failed"
		_ = rec.FailDownload(err.Error(), attempts)
	} else {
		_ = rec.CompleteDownload(attempts)
	}
	metrics.ObserveStage(string(queue.StageDownload), outcome, time.Since(start))

	if perr := p.records.Update(persistCtx, rec); perr != nil {
		log.Error("persist download outcome failed", zap.String("outcome", outcome), zap.Error(perr))
		return
	}
	if err != nil {
		log.Error("download failed", zap.Int("attempts", attempts), zap.Error(err))
		p.deadLetter(persistCtx, rec, queue.StageDownload, attempts)
		return
	}
	log.Info("download complete", zap.Int("attempts", attempts), zap.String("path", rec.FilePath))
}

// currentUploader bootstraps the uploader once and caches it for the process lifetime.
func (p *Pipeline) currentUploader(ctx context.Context) (Uploader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploader != nil || p.uploads == nil {
		return p.uploader, nil
	}
	u, err := p.uploads.Uploader(ctx)
	if err != nil {
		return nil, err
	}
	p.uploader = u
	return u, nil
}

func (p *Pipeline) runUploads(ctx context.Context) error {
	up, err := p.currentUploader(ctx)
	if errors.Is(err, ErrNoCredential) {
		p.logger.Debug("upload stage skipped: no credential")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap uploader: %w", err)
	}
	if up == nil {
		return nil
	}

	recs, err := p.records.Read(ctx, store.Filter{
		models.FieldDownloadState: string(models.DownloadSuccess),
		models.FieldUploadState:   string(models.UploadReady),
	})
	if err != nil {
		return fmt.Errorf("read upload candidates: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	p.logger.Info("upload stage", zap.Int("candidates", len(recs)))
	p.dispatch(ctx, queue.StageUpload, recs, uploadable, func(ctx context.Context, rec *models.Record) {
		p.upload(ctx, up, rec)
	})
	return nil
}

func (p *Pipeline) upload(ctx context.Context, up Uploader, rec *models.Record) {
	log := p.logger.With(zap.String("record_id", rec.ID.String()), zap.String("filename", rec.Filename))
	if !uploadable(rec) {
		log.Warn("skip upload", zap.String("download_state", string(rec.DownloadState)), zap.String("upload_state", string(rec.UploadState)))
		return
	}
	meta := rec.UploadMetadata()

	start := time.Now()
	var url string
	attempts, err := p.retry(ctx, func() error {
		var uerr error
		url, uerr = up.Upload(ctx, rec.FilePath, meta)
		return uerr
	})
	persistCtx := context.WithoutCancel(ctx)
	outcome := "success"
	var terr error
	if err != nil {
		outcome = "failed"
		terr = rec.FailUpload(err.Error(), attempts)
	} else {
		terr = rec.CompleteUpload(url, attempts)
	}
	if terr != nil {
		log.Error("upload transition rejected", zap.Error(terr))
		return
	}
	metrics.ObserveStage(string(queue.StageUpload), outcome, time.Since(start))

	if perr := p.records.Update(persistCtx, rec); perr != nil {
		log.Error("persist upload outcome failed", zap.String("outcome", outcome), zap.Error(perr))
		return
	}
	if err != nil {
		log.Error("upload failed", zap.Int("attempts", attempts), zap.Error(err))
		p.deadLetter(persistCtx, rec, queue.StageUpload, attempts)
		return
	}
	log.Info("upload complete", zap.String("url", url))

	if p.opts.DeleteAfterUpload {
		if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove uploaded file failed", zap.Error(err))
		}
	}
}
