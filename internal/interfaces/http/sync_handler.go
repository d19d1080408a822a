package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/offline"
)

// SyncHandler expone el estado de la cola de operaciones pendientes (protegido).
type SyncHandler struct {
	scheduler *offline.Scheduler
	queue     *offline.Queue
}

// NewSyncHandler construye el handler.
func NewSyncHandler(scheduler *offline.Scheduler, queue *offline.Queue) *SyncHandler {
	return &SyncHandler{scheduler: scheduler, queue: queue}
}

// Status godoc
// @Summary      Estado de sincronización
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.SyncStatusResponse
// @Router       /api/sync/status [get]
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pending, err := h.queue.Len(ctx)
	if err != nil {
		return writeError(c, err)
	}
	dead, err := h.queue.DeadLetters(ctx)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.SyncStatusResponse{Pending: pending, DeadLetters: len(dead)}
	last, lastErr := h.scheduler.LastReport()
	if last != nil {
		r := toSyncRun(*last)
		out.LastRun = &r
	}
	if lastErr != nil {
		out.LastError = lastErr.Error()
	}
	return c.JSON(out)
}

// Run godoc
// @Summary      Forzar una pasada de sincronización
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.SyncRunResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/sync/run [post]
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	report, err := h.scheduler.RunOnce(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toSyncRun(report))
}

// RequeueDeadLetters godoc
// @Summary      Reencolar operaciones descartadas
// @Description  Devuelve a la cola las operaciones que agotaron sus reintentos.
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]int
// @Router       /api/sync/dead-letters/requeue [post]
func (h *SyncHandler) RequeueDeadLetters(c *fiber.Ctx) error {
	n, err := h.queue.RequeueDeadLetters(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"requeued": n})
}

func toSyncRun(r offline.SyncReport) dto.SyncRunResponse {
	return dto.SyncRunResponse{
		Attempted:   r.Attempted,
		Succeeded:   r.Succeeded,
		Dropped:     r.Dropped,
		Failed:      r.Failed,
		Deferred:    r.Deferred,
		DeadLetters: r.DeadLetters,
		Remaining:   r.Remaining,
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
	}
}
