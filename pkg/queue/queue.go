package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueDLQ is the Redis list key for records that exhausted their retries.
	QueueDLQ = "pipeline:dlq"
	// DefaultMaxLen caps the dead-letter list; older entries are trimmed.
	DefaultMaxLen = 1000
)

// Stage names the pipeline stage an entry failed in.
type Stage string

const (
	StageDownload Stage = "download"
	StageUpload   Stage = "upload"
)

// Entry is one dead-lettered record.
type Entry struct {
	ID       string    `json:"id"`
	RecordID uuid.UUID `json:"record_id"`
	EventID  uuid.UUID `json:"event_id"`
	Stage    Stage     `json:"stage"`
	Filename string    `json:"filename"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Queue is a capped Redis list of failed records kept for operators.
type Queue struct {
	client *redis.Client
	key    string
	maxLen int64
	logger *zap.Logger
}

// NewQueue creates a dead-letter queue on the default key.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: QueueDLQ, maxLen: DefaultMaxLen, logger: logger}
}

// Push appends an entry, assigning ID and FailedAt when empty.
func (q *Queue) Push(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.FailedAt.IsZero() {
		e.FailedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.key, raw)
	pipe.LTrim(ctx, q.key, -q.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Warn("record moved to DLQ",
		zap.String("record_id", e.RecordID.String()),
		zap.String("stage", string(e.Stage)),
		zap.Int("attempts", e.Attempts))
	return nil
}

// List returns up to limit most recent entries, newest last. limit <= 0 returns all.
func (q *Queue) List(ctx context.Context, limit int) ([]Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := q.client.LRange(ctx, q.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			q.logger.Warn("invalid dlq entry", zap.String("raw", raw), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of entries.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
