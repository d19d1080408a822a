package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// CreateInventoryInput datos para planear un inventario.
type CreateInventoryInput struct {
	Name      string
	Scope     string
	Location  string
	PlannedAt *time.Time
	UserID    string
}

// Reconciler conciliación de inventario: compara el stock teórico con el conteo físico y
// aplica los ajustes en una sola transacción.
type Reconciler struct {
	executor    *offline.Executor
	cache       *offline.Cache
	inventories *offline.Repository[entity.Inventory, *entity.Inventory]
	items       *offline.Repository[entity.InventoryItem, *entity.InventoryItem]
	log         *logger.Logger
	now         func() time.Time
}

// NewReconciler construye el conciliador.
func NewReconciler(
	executor *offline.Executor,
	cache *offline.Cache,
	inventories *offline.Repository[entity.Inventory, *entity.Inventory],
	items *offline.Repository[entity.InventoryItem, *entity.InventoryItem],
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		executor:    executor,
		cache:       cache,
		inventories: inventories,
		items:       items,
		log:         log.Component("inventory-reconciler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInventory crea un inventario en estado planned.
func (r *Reconciler) CreateInventory(ctx context.Context, in CreateInventoryInput) (*entity.Inventory, offline.Outcome, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.UserID == "" {
		return nil, offline.Outcome{}, fmt.Errorf("%w: nombre y usuario requeridos", domain.ErrInvalidInput)
	}
	scope := in.Scope
	if scope == "" {
		scope = entity.InventoryScopeFull
	}
	if scope != entity.InventoryScopeFull && scope != entity.InventoryScopePartial {
		return nil, offline.Outcome{}, fmt.Errorf("%w: alcance %q", domain.ErrInvalidInput, in.Scope)
	}
	now := r.now()
	inv := entity.Inventory{
		ID:        uuid.New().String(),
		Name:      name,
		Scope:     scope,
		Location:  strings.TrimSpace(in.Location),
		Status:    entity.InventoryStatusPlanned,
		PlannedAt: in.PlannedAt,
		CreatedBy: in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	op, err := offline.NewOperation(KindCreateInventory, createInventoryPayload{Inventory: inv}, inventoryKey(inv.ID))
	if err != nil {
		return nil, offline.Outcome{}, err
	}
	out, err := r.executor.Execute(ctx, op)
	if err != nil {
		return nil, offline.Outcome{}, err
	}
	return &inv, out, nil
}

// Transition avanza el ciclo planned → in_progress → completed → validated. to debe ser el
// sucesor de from y el estado guardado debe ser from; registra quién y cuándo.
func (r *Reconciler) Transition(ctx context.Context, inventoryID, from, to, actorID string) (offline.Outcome, error) {
	if inventoryID == "" || actorID == "" {
		return offline.Outcome{}, fmt.Errorf("%w: inventario y usuario requeridos", domain.ErrInvalidInput)
	}
	if next := entity.NextInventoryStatus(from); next == "" || next != to {
		return offline.Outcome{}, fmt.Errorf("%w: transición %s → %s no permitida", domain.ErrInvalidInput, from, to)
	}
	op, err := offline.NewOperation(KindTransition, transitionPayload{
		InventoryID: inventoryID,
		From:        from,
		To:          to,
		ActorID:     actorID,
		At:          r.now(),
	}, inventoryKey(inventoryID))
	if err != nil {
		return offline.Outcome{}, err
	}
	return r.executor.Execute(ctx, op)
}

// GenerateItems crea un ítem pendiente por artículo con su stock actual como teórico.
// Volver a ejecutarlo no duplica ítems.
func (r *Reconciler) GenerateItems(ctx context.Context, inventoryID string, articleIDs []string, actorID string) (offline.Outcome, error) {
	if inventoryID == "" {
		return offline.Outcome{}, fmt.Errorf("%w: inventario requerido", domain.ErrInvalidInput)
	}
	ids := uniqueNonEmpty(articleIDs)
	if len(ids) == 0 {
		return offline.Outcome{}, fmt.Errorf("%w: se requiere al menos un artículo", domain.ErrInvalidInput)
	}
	keys := []string{inventoryKey(inventoryID)}
	for _, id := range ids {
		keys = append(keys,
			entity.EntityKey(entity.CollectionArticles, id),
			entity.EntityKey(entity.CollectionInventoryItems, entity.InventoryItemID(inventoryID, id)),
		)
	}
	op, err := offline.NewOperation(KindGenerateItems, generateItemsPayload{
		InventoryID: inventoryID,
		ArticleIDs:  ids,
		ActorID:     actorID,
		At:          r.now(),
	}, keys...)
	if err != nil {
		return offline.Outcome{}, err
	}
	return r.executor.Execute(ctx, op)
}

// CountItem registra el conteo físico de un ítem y calcula su diferencia.
func (r *Reconciler) CountItem(ctx context.Context, itemID string, physicalStock int, countedBy, notes string) (offline.Outcome, error) {
	switch {
	case itemID == "":
		return offline.Outcome{}, fmt.Errorf("%w: ítem requerido", domain.ErrInvalidInput)
	case countedBy == "":
		return offline.Outcome{}, fmt.Errorf("%w: usuario requerido", domain.ErrInvalidInput)
	case physicalStock < 0:
		return offline.Outcome{}, fmt.Errorf("%w: el conteo físico no puede ser negativo", domain.ErrInvalidInput)
	}
	keys := []string{entity.EntityKey(entity.CollectionInventoryItems, itemID)}
	if d := r.cache.Get(entity.CollectionInventoryItems, itemID); d != nil {
		if inventoryID, _ := d["inventoryId"].(string); inventoryID != "" {
			keys = append(keys, inventoryKey(inventoryID))
		}
	}
	op, err := offline.NewOperation(KindCountItem, countItemPayload{
		ItemID:        itemID,
		PhysicalStock: physicalStock,
		CountedBy:     countedBy,
		Notes:         strings.TrimSpace(notes),
		At:            r.now(),
	}, keys...)
	if err != nil {
		return offline.Outcome{}, err
	}
	return r.executor.Execute(ctx, op)
}

// ApplyAdjustments ajusta el stock de cada artículo contado con diferencia y valida el
// inventario, todo o nada.
func (r *Reconciler) ApplyAdjustments(ctx context.Context, inventoryID, appliedBy string) (offline.Outcome, error) {
	if inventoryID == "" || appliedBy == "" {
		return offline.Outcome{}, fmt.Errorf("%w: inventario y usuario requeridos", domain.ErrInvalidInput)
	}
	// Claves de entidad según la caché: ordenan la reproducción frente a otras escrituras
	// pendientes sobre los mismos artículos.
	keys := []string{inventoryKey(inventoryID)}
	for _, d := range r.cache.Query(entity.CollectionInventoryItems, repository.Where("inventoryId", inventoryID)) {
		id, _ := d["id"].(string)
		articleID, _ := d["articleId"].(string)
		keys = append(keys,
			entity.EntityKey(entity.CollectionInventoryItems, id),
			entity.EntityKey(entity.CollectionArticles, articleID),
		)
	}
	op, err := offline.NewOperation(KindApplyAdjustments, applyPayload{
		InventoryID: inventoryID,
		AppliedBy:   appliedBy,
		At:          r.now(),
	}, keys...)
	if err != nil {
		return offline.Outcome{}, err
	}
	out, err := r.executor.Execute(ctx, op)
	if err != nil {
		return out, err
	}
	r.log.Info().Str("inventory_id", inventoryID).Str("applied_by", appliedBy).Bool("synced", out.Synced).
		Msg("ajustes de inventario aplicados")
	return out, nil
}

// GetInventory devuelve el inventario; ErrNotFound si no existe.
func (r *Reconciler) GetInventory(ctx context.Context, id string) (*entity.Inventory, error) {
	inv, err := r.inventories.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("inventario %s: %w", id, domain.ErrNotFound)
	}
	return inv, nil
}

// ListItems ítems del inventario ordenados por id.
func (r *Reconciler) ListItems(ctx context.Context, inventoryID string) ([]*entity.InventoryItem, error) {
	return r.items.List(ctx, repository.Where("inventoryId", inventoryID))
}

// Summary totales de conteo y diferencias del inventario.
func (r *Reconciler) Summary(ctx context.Context, inventoryID string) (inventory.Summary, error) {
	if _, err := r.GetInventory(ctx, inventoryID); err != nil {
		return inventory.Summary{}, err
	}
	items, err := r.ListItems(ctx, inventoryID)
	if err != nil {
		return inventory.Summary{}, err
	}
	return inventory.Summarize(items), nil
}

func inventoryKey(id string) string {
	return entity.EntityKey(entity.CollectionInventories, id)
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
