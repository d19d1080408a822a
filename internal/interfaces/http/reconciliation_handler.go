package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
)

// ReconciliationHandler maneja las campañas de inventario físico (protegido).
type ReconciliationHandler struct {
	reconciler *inventory.Reconciler
}

// NewReconciliationHandler construye el handler.
func NewReconciliationHandler(reconciler *inventory.Reconciler) *ReconciliationHandler {
	return &ReconciliationHandler{reconciler: reconciler}
}

// Create godoc
// @Summary      Planear inventario
// @Tags         inventories
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateInventoryRequest  true  "Nombre, alcance y ubicación"
// @Success      201   {object}  dto.InventoryWriteResponse
// @Success      202   {object}  dto.InventoryWriteResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/inventories [post]
func (h *ReconciliationHandler) Create(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.CreateInventoryRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	inv, out, err := h.reconciler.CreateInventory(c.UserContext(), inventory.InventoryFromRequest(userID, in))
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusCreated, out.Synced, dto.InventoryWriteResponse{
		Inventory:   inventory.InventoryToResponse(inv),
		WriteResult: inventory.WriteResultOf(out),
	})
}

// GetByID godoc
// @Summary      Obtener inventario
// @Tags         inventories
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del inventario"
// @Success      200  {object}  dto.InventoryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventories/{id} [get]
func (h *ReconciliationHandler) GetByID(c *fiber.Ctx) error {
	inv, err := h.reconciler.GetInventory(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(inventory.InventoryToResponse(inv))
}

// Transition godoc
// @Summary      Avanzar el ciclo de vida del inventario
// @Description  planned → in_progress → completed → validated. 409 si el estado actual no es "from".
// @Tags         inventories
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del inventario"
// @Param        body  body  dto.TransitionRequest  true  "Estado origen y destino"
// @Success      200   {object}  dto.WriteResult
// @Success      202   {object}  dto.WriteResult
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventories/{id}/transition [post]
func (h *ReconciliationHandler) Transition(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.TransitionRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.reconciler.Transition(c.UserContext(), c.Params("id"), in.From, in.To, userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusOK, out.Synced, inventory.WriteResultOf(out))
}

// GenerateItems godoc
// @Summary      Generar ítems de conteo
// @Description  Toma una foto del stock actual de cada artículo. Los artículos que ya tienen ítem se omiten.
// @Tags         inventories
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del inventario"
// @Param        body  body  dto.GenerateItemsRequest  true  "IDs de artículos"
// @Success      201   {object}  dto.WriteResult
// @Success      202   {object}  dto.WriteResult
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/inventories/{id}/items [post]
func (h *ReconciliationHandler) GenerateItems(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.GenerateItemsRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.reconciler.GenerateItems(c.UserContext(), c.Params("id"), in.ArticleIDs, userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusCreated, out.Synced, inventory.WriteResultOf(out))
}

// ListItems godoc
// @Summary      Ítems del inventario con su resumen
// @Tags         inventories
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del inventario"
// @Success      200  {object}  dto.InventoryItemListResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventories/{id}/items [get]
func (h *ReconciliationHandler) ListItems(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.reconciler.GetInventory(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	list, err := h.reconciler.ListItems(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	summary, err := h.reconciler.Summary(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]dto.InventoryItemResponse, 0, len(list))
	for _, it := range list {
		items = append(items, inventory.ItemToResponse(it))
	}
	return c.JSON(dto.InventoryItemListResponse{Items: items, Summary: inventory.SummaryToResponse(summary)})
}

// CountItem godoc
// @Summary      Registrar conteo físico de un ítem
// @Tags         inventories
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        itemId  path  string  true  "ID del ítem"
// @Param        body    body  dto.CountItemRequest  true  "Stock físico contado"
// @Success      200     {object}  dto.WriteResult
// @Success      202     {object}  dto.WriteResult
// @Failure      400     {object}  dto.ErrorResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Router       /api/inventories/items/{itemId}/count [post]
func (h *ReconciliationHandler) CountItem(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	var in dto.CountItemRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.PhysicalStock == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "physical_stock es requerido"})
	}
	out, err := h.reconciler.CountItem(c.UserContext(), c.Params("itemId"), *in.PhysicalStock, userID, in.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusOK, out.Synced, inventory.WriteResultOf(out))
}

// ApplyAdjustments godoc
// @Summary      Aplicar ajustes de inventario
// @Description  En una sola transacción: el stock de cada artículo con diferencia pasa al conteo físico y el inventario queda validado.
// @Tags         inventories
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del inventario"
// @Success      200  {object}  dto.WriteResult
// @Success      202  {object}  dto.WriteResult
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/inventories/{id}/apply [post]
func (h *ReconciliationHandler) ApplyAdjustments(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return unauthorized(c)
	}
	out, err := h.reconciler.ApplyAdjustments(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeResult(c, fiber.StatusOK, out.Synced, inventory.WriteResultOf(out))
}
