package recordings

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/pkg/response"
)

const (
	EventRecordingCompleted = "recording.completed"
	EventURLValidation      = "endpoint.url_validation"

	headerSignature = "x-zm-signature"
	headerTimestamp = "x-zm-request-timestamp"
	maxBodyBytes    = 1 << 20
	maxClockSkew    = 5 * time.Minute
)

// Ingester stores an incoming recording notification.
type Ingester interface {
	Ingest(ctx context.Context, p models.RecordingPayload) (*models.Event, []models.Record, error)
}

// webhookEnvelope is the subset of the Zoom notification the service reads.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		AccountID  string `json:"account_id"`
		PlainToken string `json:"plainToken"`
		Object     struct {
			Topic          string                 `json:"topic"`
			Duration       int                    `json:"duration"`
			StartTime      string                 `json:"start_time"`
			RecordingFiles []models.RecordingFile `json:"recording_files"`
		} `json:"object"`
	} `json:"payload"`
	DownloadToken string `json:"download_token"`
}

func (e *webhookEnvelope) recordingPayload() models.RecordingPayload {
	obj := e.Payload.Object
	// An unparseable start time is treated as missing and rejects the event.
	start, _ := time.Parse(time.RFC3339, obj.StartTime)
	return models.RecordingPayload{
		Topic:         obj.Topic,
		Duration:      obj.Duration,
		StartTime:     start,
		AccountID:     e.Payload.AccountID,
		DownloadToken: e.DownloadToken,
		Files:         obj.RecordingFiles,
	}
}

// WebhookHandler receives recording notifications from Zoom.
type WebhookHandler struct {
	ingester Ingester
	route    string
	secret   []byte
	now      func() time.Time
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler. The endpoint only answers on route; secret enables
// signature verification and the URL validation challenge.
func NewWebhookHandler(ingester Ingester, route, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{ingester: ingester, route: route, secret: []byte(secret), now: time.Now, logger: logger}
}

// Receive handles POST /webhooks/:route.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if c.Param("route") != h.route {
		response.NotFound(c, "not found")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(h.secret) > 0 && !h.verify(c.GetHeader(headerTimestamp), c.GetHeader(headerSignature), body) {
		h.logger.Warn("webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	switch env.Event {
	case EventURLValidation:
		h.urlValidation(c, env.Payload.PlainToken)
		return
	case EventRecordingCompleted, "":
	default:
		h.logger.Debug("webhook event ignored", zap.String("event", env.Event))
		response.OK(c, gin.H{"ignored": env.Event})
		return
	}

	ev, recs, err := h.ingester.Ingest(c.Request.Context(), env.recordingPayload())
	if err != nil {
		h.logger.Error("ingest webhook failed", zap.Error(err))
		response.BadRequest(c, err.Error())
		return
	}
	h.logger.Info("recording webhook received",
		zap.String("event_id", ev.ID.String()),
		zap.String("state", string(ev.State)),
		zap.Int("records", len(recs)))
	response.OK(c, gin.H{"event_id": ev.ID, "state": ev.State, "records": len(recs)})
}

// urlValidation answers the endpoint ownership challenge.
func (h *WebhookHandler) urlValidation(c *gin.Context, plain string) {
	if plain == "" || len(h.secret) == 0 {
		response.BadRequest(c, "url validation unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plainToken":     plain,
		"encryptedToken": h.sign([]byte(plain)),
	})
}

func (h *WebhookHandler) sign(msg []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks the v0 signature over "v0:<timestamp>:<body>" and rejects stale timestamps.
func (h *WebhookHandler) verify(ts, sig string, body []byte) bool {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if skew := h.now().Sub(time.Unix(sec, 0)); skew > maxClockSkew || skew < -maxClockSkew {
		return false
	}
	msg := make([]byte, 0, len(ts)+len(body)+4)
	msg = append(msg, "v0:"+ts+":"...)
	msg = append(msg, body...)
	want := "v0=" + h.sign(msg)
	return hmac.Equal([]byte(want), []byte(sig))
}
