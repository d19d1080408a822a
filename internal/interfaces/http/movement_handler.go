package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
)

// MovementHandler maneja las peticiones HTTP del libro de movimientos (protegido).
type MovementHandler struct {
	ledger *inventory.Ledger
}

// NewMovementHandler construye el handler.
func NewMovementHandler(ledger *inventory.Ledger) *MovementHandler {
	return &MovementHandler{ledger: ledger}
}

// RecordEntry godoc
// @Summary      Registrar entrada de stock
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterEntryRequest  true  "article_id, quantity y datos opcionales de lote/costo/calidad"
// @Success      201   {object}  dto.MovementReceiptResponse
// @Success      202   {object}  dto.MovementReceiptResponse  "guardado en local, pendiente de sincronizar"
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/movements/entries [post]
func (h *MovementHandler) RecordEntry(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.RegisterEntryRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.ledger.RecordEntry(c.UserContext(), inventory.EntryFromRequest(userID, in))
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusCreated, r.Synced, inventory.ReceiptToResponse(r))
}

// RecordExit godoc
// @Summary      Registrar salida de stock
// @Description  Rechaza con 409 INSUFFICIENT_STOCK si la cantidad supera el stock actual.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterExitRequest  true  "article_id, quantity, destination"
// @Success      201   {object}  dto.MovementReceiptResponse
// @Success      202   {object}  dto.MovementReceiptResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/movements/exits [post]
func (h *MovementHandler) RecordExit(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.RegisterExitRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.ledger.RecordExit(c.UserContext(), inventory.ExitFromRequest(userID, in))
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusCreated, r.Synced, inventory.ReceiptToResponse(r))
}

// Validate godoc
// @Summary      Validar movimiento pendiente
// @Tags         movements
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.WriteResult
// @Success      202  {object}  dto.WriteResult
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/movements/{id}/validate [post]
func (h *MovementHandler) Validate(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	out, err := h.ledger.ValidateMovement(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusOK, out.Synced, inventory.WriteResultOf(out))
}

// Reject godoc
// @Summary      Rechazar movimiento pendiente
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del movimiento"
// @Param        body  body  dto.RejectMovementRequest  false  "Motivo"
// @Success      200   {object}  dto.WriteResult
// @Success      202   {object}  dto.WriteResult
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/movements/{id}/reject [post]
func (h *MovementHandler) Reject(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.RejectMovementRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	out, err := h.ledger.RejectMovement(c.UserContext(), c.Params("id"), userID, in.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusOK, out.Synced, inventory.WriteResultOf(out))
}

// GetByID godoc
// @Summary      Obtener movimiento
// @Tags         movements
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/movements/{id} [get]
func (h *MovementHandler) GetByID(c *fiber.Ctx) error {
	m, err := h.ledger.GetMovement(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(inventory.MovementToResponse(m))
}

// List godoc
// @Summary      Listar movimientos
// @Description  Más recientes primero. Filtra por artículo si se indica article_id.
// @Tags         movements
// @Security     Bearer
// @Produce      json
// @Param        article_id  query  string  false  "ID del artículo"
// @Success      200  {object}  dto.MovementListResponse
// @Router       /api/movements [get]
func (h *MovementHandler) List(c *fiber.Ctx) error {
	list, err := h.ledger.ListMovements(c.UserContext(), c.Query("article_id"))
	if err != nil {
		return writeError(c, err)
	}
	items := make([]dto.MovementResponse, 0, len(list))
	for _, m := range list {
		items = append(items, inventory.MovementToResponse(m))
	}
	return c.JSON(dto.MovementListResponse{Items: items})
}
