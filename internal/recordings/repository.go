package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/store"
)

// whereClause turns an exact-match filter into a WHERE clause over whitelisted columns.
// Keys are sorted so the generated SQL is stable. Columns map filter names to SQL expressions.
func whereClause(f store.Filter, columns map[string]string) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		col, ok := columns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", store.ErrUnknownField, k)
		}
		args = append(args, f[k])
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

var eventColumns = map[string]string{
	"id":                   "id::text",
	models.FieldEventState: "state",
}

// EventRepository persists events in PostgreSQL.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates an event repository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventSelect = `SELECT id, state, payload, reject_reason, created_at, updated_at FROM events`

// Read implements store.Store.
func (r *EventRepository) Read(ctx context.Context, f store.Filter) ([]models.Event, error) {
	where, args, err := whereClause(f, eventColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, eventSelect+where+" ORDER BY created_at", args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	list := make([]models.Event, 0)
	for rows.Next() {
		var ev models.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.State, &payload, &ev.RejectReason, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %s: %w", ev.ID, err)
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// Add implements store.Store.
func (r *EventRepository) Add(ctx context.Context, ev *models.Event) (uuid.UUID, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode payload: %w", err)
	}
	const q = `INSERT INTO events (id, state, payload, reject_reason)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, ev.State, payload, ev.RejectReason).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return uuid.Nil, fmt.Errorf("insert event: %w", err)
	}
	return ev.ID, nil
}

// Update implements store.Store.
func (r *EventRepository) Update(ctx context.Context, ev *models.Event) error {
	const q = `UPDATE events SET state = $1, reject_reason = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, ev.State, ev.RejectReason, ev.ID).Scan(&ev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update event %s: %w", ev.ID, store.ErrNotFound)
	}
	return err
}

var recordColumns = map[string]string{
	"id":                      "id::text",
	models.FieldEventID:       "event_id::text",
	models.FieldDownloadState: "load_from_zoom_state",
	models.FieldUploadState:   "load_to_youtube_state",
	models.FieldCategory:      "category",
}

// RecordRepository persists records in PostgreSQL.
type RecordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository creates a record repository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

const recordSelect = `SELECT id, event_id, file_index, load_from_zoom_state, load_to_youtube_state,
	download_attempts, upload_attempts, error, video_url, topic_name, filename, filepath, category,
	playlist, description, date, download_url, download_token, file_type, file_extension, created_at, updated_at
	FROM records`

func scanRecord(row pgx.Row, rec *models.Record) error {
	return row.Scan(&rec.ID, &rec.EventID, &rec.FileIndex, &rec.DownloadState, &rec.UploadState,
		&rec.DownloadAttempts, &rec.UploadAttempts, &rec.Error, &rec.VideoURL, &rec.TopicName, &rec.Filename,
		&rec.FilePath, &rec.Category, &rec.Playlist, &rec.Description, &rec.Date, &rec.DownloadURL,
		&rec.DownloadToken, &rec.FileType, &rec.FileExtension, &rec.CreatedAt, &rec.UpdatedAt)
}

// Read implements store.Store.
func (r *RecordRepository) Read(ctx context.Context, f store.Filter) ([]models.Record, error) {
	where, args, err := whereClause(f, recordColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, recordSelect+where+" ORDER BY created_at, file_index", args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	list := make([]models.Record, 0)
	for rows.Next() {
		var rec models.Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Add implements store.Store.
func (r *RecordRepository) Add(ctx context.Context, rec *models.Record) (uuid.UUID, error) {
	const q = `INSERT INTO records (id, event_id, file_index, load_from_zoom_state, load_to_youtube_state,
		topic_name, filename, filepath, category, playlist, description, date,
		download_url, download_token, file_type, file_extension)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, rec.EventID, rec.FileIndex, rec.DownloadState, rec.UploadState,
		rec.TopicName, rec.Filename, rec.FilePath, rec.Category, rec.Playlist, rec.Description, rec.Date,
		rec.DownloadURL, rec.DownloadToken, rec.FileType, rec.FileExtension).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert record: %w", err)
	}
	return rec.ID, nil
}

// Update implements store.Store. Only the mutable stage columns are written.
func (r *RecordRepository) Update(ctx context.Context, rec *models.Record) error {
	const q = `UPDATE records SET load_from_zoom_state = $1, load_to_youtube_state = $2,
		download_attempts = $3, upload_attempts = $4, error = $5, video_url = $6, updated_at = NOW()
		WHERE id = $7 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, rec.DownloadState, rec.UploadState, rec.DownloadAttempts,
		rec.UploadAttempts, rec.Error, rec.VideoURL, rec.ID).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update record %s: %w", rec.ID, store.ErrNotFound)
	}
	return err
}

// CredentialRepository persists OAuth credentials in PostgreSQL.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Get implements store.Credentials.
func (r *CredentialRepository) Get(ctx context.Context, provider string) (*models.Credential, error) {
	const q = `SELECT provider, access_token, refresh_token, token_type, COALESCE(expiry, 'epoch'::timestamptz), updated_at
		FROM oauth_credentials WHERE provider = $1`
	var c models.Credential
	err := r.pool.QueryRow(ctx, q, provider).Scan(&c.Provider, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Expiry, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credential %s: %w", provider, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Put implements store.Credentials. An empty refresh token keeps the stored one.
func (r *CredentialRepository) Put(ctx context.Context, c *models.Credential) error {
	const q = `INSERT INTO oauth_credentials (provider, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), oauth_credentials.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, c.Provider, c.AccessToken, c.RefreshToken, c.TokenType, c.Expiry).Scan(&c.UpdatedAt)
}

var (
	_ store.Store[models.Event]  = (*EventRepository)(nil)
	_ store.Store[models.Record] = (*RecordRepository)(nil)
	_ store.Credentials          = (*CredentialRepository)(nil)
)
