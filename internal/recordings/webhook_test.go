package recordings

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoomsync/backend/internal/metadata"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/pipeline"
	"github.com/zoomsync/backend/internal/store"
)

const testRoute = "5f0c7a4e-route"

type nopDownloader struct{}

func (nopDownloader) Fetch(context.Context, string, string, string) error { return nil }

type webhookEnv struct {
	router  *gin.Engine
	handler *WebhookHandler
	events  *store.Memory[models.Event, *models.Event]
	records *store.Memory[models.Record, *models.Record]
}

func newWebhookEnv(t *testing.T, secret string) *webhookEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	events := store.NewMemory[models.Event, *models.Event]()
	records := store.NewMemory[models.Record, *models.Record]()
	p, err := pipeline.New(pipeline.Deps{
		Events:     events,
		Records:    records,
		Downloader: nopDownloader{},
		Builder:    metadata.NewBuilder(t.TempDir(), time.UTC),
	}, pipeline.Options{})
	require.NoError(t, err)

	h := NewWebhookHandler(p, testRoute, secret, nil)
	r := gin.New()
	r.POST("/webhooks/:route", h.Receive)
	return &webhookEnv{router: r, handler: h, events: events, records: records}
}

func (e *webhookEnv) post(route string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+route, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func recordingBody(topic string, duration int) []byte {
	body := map[string]any{
		"event": EventRecordingCompleted,
		"payload": map[string]any{
			"account_id": "acc-1",
			"object": map[string]any{
				"topic":      topic,
				"duration":   duration,
				"start_time": "2026-10-17T09:00:00Z",
				"recording_files": []map[string]any{
					{"file_type": "MP4", "file_extension": "MP4", "status": "completed", "download_url": "https://zoom.example/rec/1"},
					{"file_type": "CHAT", "file_extension": "TXT", "status": "completed", "download_url": "https://zoom.example/rec/2"},
				},
			},
		},
		"download_token": "dl-token",
	}
	b, _ := json.Marshal(body)
	return b
}

type okBody struct {
	Success bool `json:"success"`
	Data    struct {
		EventID string `json:"event_id"`
		State   string `json:"state"`
		Records int    `json:"records"`
	} `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) okBody {
	t.Helper()
	var b okBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestReceive_AcceptsRecording(t *testing.T) {
	env := newWebhookEnv(t, "")
	w := env.post(testRoute, recordingBody("Intro; Jane Doe; potok-12", 60), nil)
	require.Equal(t, http.StatusOK, w.Code)

	b := decode(t, w)
	assert.True(t, b.Success)
	assert.Equal(t, "processed", b.Data.State)
	assert.Equal(t, 1, b.Data.Records)

	recs, err := env.records.Read(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "potok-12", recs[0].Playlist)
	assert.Equal(t, "dl-token", recs[0].DownloadToken)
	assert.Equal(t, "https://zoom.example/rec/1", recs[0].DownloadURL)
}

func TestReceive_ShortMeetingRejected(t *testing.T) {
	env := newWebhookEnv(t, "")
	w := env.post(testRoute, recordingBody("Standup", 3), nil)
	require.Equal(t, http.StatusOK, w.Code)

	b := decode(t, w)
	assert.Equal(t, "rejected", b.Data.State)
	assert.Zero(t, b.Data.Records)
	assert.Equal(t, 0, env.records.Len())
	assert.Equal(t, 1, env.events.Len())
}

func TestReceive_MalformedAndWrongRoute(t *testing.T) {
	env := newWebhookEnv(t, "")
	assert.Equal(t, http.StatusBadRequest, env.post(testRoute, []byte(`{"event":`), nil).Code)
	assert.Equal(t, http.StatusNotFound, env.post("guess", recordingBody("x", 60), nil).Code)
	assert.Equal(t, 0, env.events.Len())
}

func TestReceive_IgnoresOtherEvents(t *testing.T) {
	env := newWebhookEnv(t, "")
	w := env.post(testRoute, []byte(`{"event":"meeting.started","payload":{}}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.events.Len())
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, models.RecordingPayload) (*models.Event, []models.Record, error) {
	return nil, nil, errors.New("store event: connection refused")
}

func TestReceive_StorageFailureIs400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(failingIngester{}, testRoute, "", nil)
	r := gin.New()
	r.POST("/webhooks/:route", h.Receive)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/"+testRoute, bytes.NewReader(recordingBody("x", 60))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestReceive_Signature(t *testing.T) {
	const secret = "zoom-secret"
	env := newWebhookEnv(t, secret)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	env.handler.now = func() time.Time { return now }
	body := recordingBody("Weekly sync", 30)
	ts := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong secret", map[string]string{headerTimestamp: ts, headerSignature: sign("other", ts, body)}, http.StatusUnauthorized},
		{"stale timestamp", map[string]string{
			headerTimestamp: strconv.FormatInt(now.Add(-time.Hour).Unix(), 10),
			headerSignature: sign(secret, strconv.FormatInt(now.Add(-time.Hour).Unix(), 10), body),
		}, http.StatusUnauthorized},
		{"valid", map[string]string{headerTimestamp: ts, headerSignature: sign(secret, ts, body)}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.post(testRoute, body, tt.headers).Code)
		})
	}
	assert.Equal(t, 1, env.events.Len())
}

func TestReceive_URLValidation(t *testing.T) {
	const secret = "zoom-secret"
	env := newWebhookEnv(t, secret)
	now := time.Now()
	env.handler.now = func() time.Time { return now }
	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"qgg8vlvZRS6UYooatFL8Aw"}}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	w := env.post(testRoute, body, map[string]string{headerTimestamp: ts, headerSignature: sign(secret, ts, body)})
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		PlainToken     string `json:"plainToken"`
		EncryptedToken string `json:"encryptedToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("qgg8vlvZRS6UYooatFL8Aw"))
	assert.Equal(t, "qgg8vlvZRS6UYooatFL8Aw", got.PlainToken)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), got.EncryptedToken)
}
