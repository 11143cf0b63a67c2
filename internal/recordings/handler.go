package recordings

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoomsync/backend/internal/middleware"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/pipeline"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/pkg/queue"
	"github.com/zoomsync/backend/pkg/response"
)

// Runner is the part of the pipeline the admin API drives.
type Runner interface {
	Tick(ctx context.Context) error
	Retry(ctx context.Context, id string, stage queue.Stage) (*models.Record, error)
}

// DeadLetterLister lists dead-lettered records.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]queue.Entry, error)
}

// Handler serves the operator API over events, records and the pipeline.
type Handler struct {
	events  store.Store[models.Event]
	records store.Store[models.Record]
	runner  Runner
	dlq     DeadLetterLister // optional
	logger  *zap.Logger

	base    context.Context
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewHandler creates the admin handler. Manual runs use base as their parent context.
func NewHandler(base context.Context, events store.Store[models.Event], records store.Store[models.Record], runner Runner, dlq DeadLetterLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{events: events, records: records, runner: runner, dlq: dlq, logger: logger, base: base}
}

// filterFromQuery maps every query parameter to an exact-match filter; the store rejects unknown names.
func filterFromQuery(c *gin.Context) store.Filter {
	f := store.Filter{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			f[k] = v[0]
		}
	}
	return f
}

// ListEvents handles GET /admin/events?state=.
func (h *Handler) ListEvents(c *gin.Context) {
	list, err := h.events.Read(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.fail(c, "list events", err)
		return
	}
	response.List(c, list)
}

// ListRecords handles GET /admin/records with exact-match filters such as load_from_zoom_state=failed.
func (h *Handler) ListRecords(c *gin.Context) {
	list, err := h.records.Read(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.fail(c, "list records", err)
		return
	}
	response.List(c, list)
}

// Retry handles POST /admin/records/:id/retry?stage=download|upload.
func (h *Handler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid record id")
		return
	}
	stage := queue.Stage(c.DefaultQuery("stage", string(queue.StageDownload)))
	rec, err := h.runner.Retry(c.Request.Context(), id.String(), stage)
	if err != nil {
		h.fail(c, "retry record", err)
		return
	}
	h.logger.Info("operator retry", zap.String("record_id", id.String()), zap.String("stage", string(stage)),
		zap.String("operator", c.GetString(middleware.ContextOperator)))
	response.OK(c, rec)
}

// RunPipeline handles POST /admin/pipeline/run. The tick runs in the background; a second
// request while one is running gets 409.
func (h *Handler) RunPipeline(c *gin.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		response.Conflict(c, "a manual run is already in progress")
		return
	}
	h.running = true
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			h.wg.Done()
		}()
		if err := h.runner.Tick(h.base); err != nil {
			h.logger.Error("manual pipeline run failed", zap.Error(err))
			return
		}
		h.logger.Info("manual pipeline run finished")
	}()
	response.Accepted(c, gin.H{"started": true})
}

// Wait blocks until a manual run in progress has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// DeadLetters handles GET /admin/dead-letters?limit=.
func (h *Handler) DeadLetters(c *gin.Context) {
	if h.dlq == nil {
		response.ServiceUnavailable(c, "dead-letter queue not configured")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		response.BadRequest(c, "invalid limit")
		return
	}
	list, err := h.dlq.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "list dead letters", err)
		return
	}
	response.List(c, list)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownField), errors.Is(err, pipeline.ErrUnknownStage):
		response.BadRequest(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, models.ErrIllegalTransition):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		response.Internal(c, op+" failed")
	}
}
