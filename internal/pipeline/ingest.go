package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoomsync/backend/internal/metadata"
	"github.com/zoomsync/backend/internal/metrics"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/internal/topic"
)

// Ingest stores a new event and, when it is acceptable, expands it into records.
// Only a failure to store the event itself is returned; a failed expansion is left
// for the next tick to finish.
func (p *Pipeline) Ingest(ctx context.Context, payload models.RecordingPayload) (*models.Event, []models.Record, error) {
	ev := &models.Event{State: models.EventReady, Payload: payload}
	if reason := p.rejectReason(payload); reason != "" {
		if err := ev.Reject(reason); err != nil {
			return nil, nil, err
		}
	}
	if _, err := p.events.Add(ctx, ev); err != nil {
		return nil, nil, fmt.Errorf("store event: %w", err)
	}
	metrics.IncEvent(string(ev.State))

	log := p.logger.With(zap.String("event_id", ev.ID.String()), zap.String("topic", payload.Topic))
	if ev.State == models.EventRejected {
		log.Info("event rejected", zap.String("reason", ev.RejectReason))
		return ev, nil, nil
	}

	key := eventGuardKey(ev)
	if !p.guard.TryAcquire(ctx, key) {
		log.Info("event accepted, expansion already running elsewhere")
		return ev, nil, nil
	}
	defer p.guard.Release(context.WithoutCancel(ctx), key)

	recs, err := p.expand(ctx, ev)
	if err != nil {
		log.Error("expand event failed, will retry on next tick", zap.Error(err))
		return ev, recs, nil
	}
	log.Info("event accepted", zap.Int("records", len(recs)))
	return ev, recs, nil
}

func (p *Pipeline) rejectReason(payload models.RecordingPayload) string {
	switch {
	case payload.Topic == "":
		return "missing topic"
	case payload.StartTime.IsZero():
		return "missing start_time"
	case payload.Duration < p.opts.MinDuration:
		return fmt.Sprintf("duration %d min is below the %d min minimum", payload.Duration, p.opts.MinDuration)
	case len(payload.EligibleFiles()) == 0:
		return "no eligible recording files"
	}
	return ""
}

// expand creates the records of a ready event that do not exist yet and marks the event processed.
func (p *Pipeline) expand(ctx context.Context, ev *models.Event) ([]models.Record, error) {
	existing, err := p.records.Read(ctx, store.Filter{models.FieldEventID: ev.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	have := make(map[int]bool, len(existing))
	for _, r := range existing {
		have[r.FileIndex] = true
	}

	files := ev.Payload.EligibleFiles()
	cls := topic.Classify(ev.Payload.Topic)
	var created []models.Record
	for i, f := range files {
		if have[i] {
			continue
		}
		meta := p.builder.Build(metadata.Input{
			EventID:        ev.ID.String(),
			Topic:          ev.Payload.Topic,
			StartTime:      ev.Payload.StartTime,
			AccountID:      ev.Payload.AccountID,
			Classification: cls,
			Index:          i,
			Total:          len(files),
			Extension:      f.FileExtension,
		})
		rec := models.Record{
			EventID:       ev.ID,
			FileIndex:     i,
			DownloadState: models.DownloadReady,
			UploadState:   models.UploadReady,
			TopicName:     meta.TopicName,
			Filename:      meta.Filename,
			FilePath:      meta.FilePath,
			Category:      meta.Category,
			Playlist:      meta.Playlist,
			Description:   meta.Description,
			Date:          meta.Date,
			DownloadURL:   f.DownloadURL,
			DownloadToken: ev.Payload.DownloadToken,
			FileType:      f.FileType,
			FileExtension: f.FileExtension,
		}
		if _, err := p.records.Add(ctx, &rec); err != nil {
			return created, fmt.Errorf("add record %d: %w", i, err)
		}
		created = append(created, rec)
	}

	if err := ev.MarkProcessed(); err != nil {
		return created, err
	}
	if err := p.events.Update(ctx, ev); err != nil {
		return created, fmt.Errorf("mark event processed: %w", err)
	}
	return created, nil
}

// expandPending finishes events that were stored ready but never fully expanded. Each event is
// expanded under its own guard key and re-read once held. A failing event does not stop the sweep.
func (p *Pipeline) expandPending(ctx context.Context) error {
	evs, err := p.events.Read(ctx, store.Filter{models.FieldEventState: string(models.EventReady)})
	if err != nil {
		return fmt.Errorf("read pending events: %w", err)
	}
	var errs []error
	for i := range evs {
		if err := p.expandHeld(ctx, &evs[i]); err != nil {
			errs = append(errs, fmt.Errorf("expand event %s: %w", evs[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) expandHeld(ctx context.Context, stale *models.Event) error {
	key := eventGuardKey(stale)
	if !p.guard.TryAcquire(ctx, key) {
		return nil
	}
	defer p.guard.Release(context.WithoutCancel(ctx), key)

	evs, err := p.events.Read(ctx, store.Filter{"id": stale.ID.String()})
	if err != nil {
		return err
	}
	if len(evs) == 0 || evs[0].State != models.EventReady {
		return nil
	}
	recs, err := p.expand(ctx, &evs[0])
	if err != nil {
		return err
	}
	p.logger.Info("pending event expanded", zap.String("event_id", stale.ID.String()), zap.Int("records", len(recs)))
	return nil
}

// eventGuardKey keeps event expansion and record processing in separate guard namespaces.
func eventGuardKey(ev *models.Event) string {
	return "event:" + ev.ID.String()
}
