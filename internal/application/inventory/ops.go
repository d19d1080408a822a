package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Tipos de operación del libro de stock y de la conciliación.
const (
	KindRecordEntry      = "movement.entry"
	KindRecordExit       = "movement.exit"
	KindValidateMovement = "movement.validate"
	KindRejectMovement   = "movement.reject"
	KindCreateInventory  = "inventory.create"
	KindTransition       = "inventory.transition"
	KindGenerateItems    = "inventory.generate_items"
	KindCountItem        = "inventory.count_item"
	KindApplyAdjustments = "inventory.apply_adjustments"
)

// Payloads persistidos en la cola. Ids y fechas se fijan al crear la operación para que la
// reproducción escriba exactamente lo mismo.
type entryPayload struct {
	MovementID string    `json:"movementId"`
	At         time.Time `json:"at"`
	EntryInput
}

type exitPayload struct {
	MovementID string    `json:"movementId"`
	At         time.Time `json:"at"`
	ExitInput
}

type reviewPayload struct {
	MovementID  string    `json:"movementId"`
	ValidatorID string    `json:"validatorId"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

type createInventoryPayload struct {
	Inventory entity.Inventory `json:"inventory"`
}

type transitionPayload struct {
	InventoryID string    `json:"inventoryId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ActorID     string    `json:"actorId"`
	At          time.Time `json:"at"`
}

type generateItemsPayload struct {
	InventoryID string    `json:"inventoryId"`
	ArticleIDs  []string  `json:"articleIds"`
	ActorID     string    `json:"actorId"`
	At          time.Time `json:"at"`
}

type countItemPayload struct {
	ItemID        string    `json:"itemId"`
	PhysicalStock int       `json:"physicalStock"`
	CountedBy     string    `json:"countedBy"`
	Notes         string    `json:"notes,omitempty"`
	At            time.Time `json:"at"`
}

type applyPayload struct {
	InventoryID string    `json:"inventoryId"`
	AppliedBy   string    `json:"appliedBy"`
	At          time.Time `json:"at"`
}

// RegisterHandlers registra en r las operaciones del libro de stock y de la conciliación.
func RegisterHandlers(r *offline.Registry) {
	r.Register(KindRecordEntry, handler(entryTx))
	r.Register(KindRecordExit, handler(exitTx))
	r.Register(KindValidateMovement, handler(func(p reviewPayload) repository.TxFunc {
		return reviewTx(p, entity.MovementStatusValidated)
	}))
	r.Register(KindRejectMovement, handler(func(p reviewPayload) repository.TxFunc {
		return reviewTx(p, entity.MovementStatusRejected)
	}))
	r.Register(KindCreateInventory, handler(createInventoryTx))
	r.Register(KindTransition, handler(transitionTx))
	r.Register(KindGenerateItems, handler(generateItemsTx))
	r.Register(KindCountItem, handler(countItemTx))
	r.Register(KindApplyAdjustments, handler(applyAdjustmentsTx))
}

func handler[P any](build func(P) repository.TxFunc) offline.Handler {
	return func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := offline.Decode[P](raw)
		if err != nil {
			return nil, err
		}
		return build(p), nil
	}
}

func loadArticle(ctx context.Context, tx repository.Tx, id string) (*entity.Article, error) {
	a, err := repository.Articles.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("artículo %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func loadInventory(ctx context.Context, tx repository.Tx, id string) (*entity.Inventory, error) {
	inv, err := repository.Inventories.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("inventario %s: %w", id, domain.ErrNotFound)
	}
	return inv, nil
}

// entryTx suma la cantidad al artículo y crea el movimiento en la misma transacción.
func entryTx(p entryPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		a, err := loadArticle(ctx, tx, p.ArticleID)
		if err != nil {
			return err
		}
		prev := a.CurrentStock
		if p.UnitCost != nil {
			a.UnitCost = inventory.CostCalculator(prev, a.UnitCost, p.Quantity, *p.UnitCost)
		}
		a.CurrentStock = prev + p.Quantity
		a.Status = entity.DeriveArticleStatus(a.CurrentStock, a.MinStock)
		if p.BatchNumber != "" {
			a.BatchNumber = p.BatchNumber
		}
		if p.ExpiryDate != nil {
			a.ExpiryDate = p.ExpiryDate
		}
		if p.Location != "" {
			a.Location = p.Location
		}
		a.UpdatedAt = p.At

		mov := newMovement(p.MovementID, entity.MovementTypeEntry, a, p.Quantity, prev, p.UserID, p.At)
		mov.Status = entryStatus(p.QualityCheck)
		mov.Reason = p.Reason
		mov.Reference = p.Reference
		mov.SupplierID = p.SupplierID
		mov.BatchNumber = p.BatchNumber
		mov.ExpiryDate = p.ExpiryDate
		mov.Location = p.Location
		mov.QualityCheck = p.QualityCheck
		if p.UnitCost != nil {
			mov.UnitCost = *p.UnitCost
			mov.TotalCost = p.UnitCost.Mul(decimalInt(p.Quantity))
		}

		if err := repository.Articles.Store(ctx, tx, a); err != nil {
			return err
		}
		return repository.Movements.Store(ctx, tx, mov)
	}
}

// exitTx verifica el stock y descuenta dentro de la misma transacción.
func exitTx(p exitPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		a, err := loadArticle(ctx, tx, p.ArticleID)
		if err != nil {
			return err
		}
		if p.Quantity > a.CurrentStock {
			return fmt.Errorf("%w: artículo %s tiene %d, se solicitan %d",
				domain.ErrInsufficientStock, a.Code, a.CurrentStock, p.Quantity)
		}
		prev := a.CurrentStock
		a.CurrentStock = prev - p.Quantity
		a.Status = entity.DeriveArticleStatus(a.CurrentStock, a.MinStock)
		a.UpdatedAt = p.At

		mov := newMovement(p.MovementID, entity.MovementTypeExit, a, p.Quantity, prev, p.UserID, p.At)
		mov.Status = entity.MovementStatusPending
		mov.Reason = p.Reason
		mov.Reference = p.Reference
		mov.Destination = p.Destination
		mov.UnitCost = a.UnitCost
		mov.TotalCost = a.UnitCost.Mul(decimalInt(p.Quantity))

		if err := repository.Articles.Store(ctx, tx, a); err != nil {
			return err
		}
		return repository.Movements.Store(ctx, tx, mov)
	}
}

func newMovement(id, typ string, a *entity.Article, qty, prev int, userID string, at time.Time) *entity.Movement {
	return &entity.Movement{
		ID:            id,
		Type:          typ,
		ArticleID:     a.ID,
		ArticleCode:   a.Code,
		ArticleName:   a.Name,
		Unit:          a.Unit,
		Quantity:      qty,
		PreviousStock: prev,
		NewStock:      a.CurrentStock,
		CreatedBy:     userID,
		CreatedAt:     at,
	}
}

// entryStatus: una entrada con control de calidad fallido queda pendiente de validación.
func entryStatus(qc *entity.QualityCheck) string {
	if qc != nil && !qc.Passed {
		return entity.MovementStatusPending
	}
	return entity.MovementStatusValidated
}

// reviewTx cierra un movimiento pendiente; no toca el stock.
func reviewTx(p reviewPayload, status string) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		mov, err := repository.Movements.Load(ctx, tx, p.MovementID)
		if err != nil {
			return err
		}
		if mov == nil {
			return fmt.Errorf("movimiento %s: %w", p.MovementID, domain.ErrNotFound)
		}
		if mov.Status != entity.MovementStatusPending {
			return fmt.Errorf("%w: movimiento %s está %s", domain.ErrConflict, mov.ID, mov.Status)
		}
		at := p.At
		patch := repository.Document{
			"status":      status,
			"validatedBy": p.ValidatorID,
			"validatedAt": at,
		}
		if status == entity.MovementStatusRejected {
			patch["rejectionReason"] = p.Reason
		}
		return tx.Update(ctx, entity.CollectionMovements, mov.ID, patch)
	}
}

func createInventoryTx(p createInventoryPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.Get(ctx, entity.CollectionInventories, p.Inventory.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: inventario %s ya existe", domain.ErrConflict, p.Inventory.ID)
		}
		inv := p.Inventory
		return repository.Inventories.Store(ctx, tx, &inv)
	}
}

// transitionTx avanza el ciclo de vida si el estado guardado coincide con from.
func transitionTx(p transitionPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		inv, err := loadInventory(ctx, tx, p.InventoryID)
		if err != nil {
			return err
		}
		if inv.Status != p.From {
			return fmt.Errorf("%w: inventario %s está %s, se esperaba %s", domain.ErrConflict, inv.ID, inv.Status, p.From)
		}
		at := p.At
		inv.Status = p.To
		inv.UpdatedAt = at
		switch p.To {
		case entity.InventoryStatusInProgress:
			inv.StartedAt, inv.StartedBy = &at, p.ActorID
		case entity.InventoryStatusCompleted:
			inv.CompletedAt, inv.CompletedBy = &at, p.ActorID
		case entity.InventoryStatusValidated:
			inv.ValidatedAt, inv.ValidatedBy = &at, p.ActorID
		}
		return repository.Inventories.Store(ctx, tx, inv)
	}
}

// generateItemsTx crea un ítem por artículo con la foto del stock actual. Los artículos que
// ya tienen ítem en el inventario se omiten.
func generateItemsTx(p generateItemsPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		inv, err := loadInventory(ctx, tx, p.InventoryID)
		if err != nil {
			return err
		}
		if inv.Status == entity.InventoryStatusValidated {
			return fmt.Errorf("%w: inventario %s ya validado", domain.ErrConflict, inv.ID)
		}
		existing, err := tx.Query(ctx, entity.CollectionInventoryItems, repository.Where("inventoryId", inv.ID))
		if err != nil {
			return err
		}
		have := make(map[string]struct{}, len(existing))
		for _, d := range existing {
			if id, ok := d["articleId"].(string); ok {
				have[id] = struct{}{}
			}
		}
		created := 0
		for _, articleID := range p.ArticleIDs {
			if _, ok := have[articleID]; ok {
				continue
			}
			a, err := loadArticle(ctx, tx, articleID)
			if err != nil {
				return err
			}
			item := &entity.InventoryItem{
				ID:               entity.InventoryItemID(inv.ID, a.ID),
				InventoryID:      inv.ID,
				ArticleID:        a.ID,
				ArticleCode:      a.Code,
				ArticleName:      a.Name,
				Unit:             a.Unit,
				TheoreticalStock: a.CurrentStock,
				Status:           entity.ItemStatusPending,
			}
			if err := repository.InventoryItems.Store(ctx, tx, item); err != nil {
				return err
			}
			have[articleID] = struct{}{}
			created++
		}
		inv.ArticlesCount = len(existing) + created
		inv.UpdatedAt = p.At
		return repository.Inventories.Store(ctx, tx, inv)
	}
}

func countItemTx(p countItemPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		item, err := repository.InventoryItems.Load(ctx, tx, p.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("ítem %s: %w", p.ItemID, domain.ErrNotFound)
		}
		if item.Status == entity.ItemStatusValidated {
			return fmt.Errorf("%w: ítem %s ya ajustado", domain.ErrConflict, item.ID)
		}
		// Un inventario validado ya aplicó sus ajustes: un conteo posterior no tendría efecto.
		inv, err := loadInventory(ctx, tx, item.InventoryID)
		if err != nil {
			return err
		}
		if inv.Status == entity.InventoryStatusValidated {
			return fmt.Errorf("%w: inventario %s ya validado", domain.ErrConflict, inv.ID)
		}
		physical := p.PhysicalStock
		diff := inventory.Difference(physical, item.TheoreticalStock)
		at := p.At
		item.PhysicalStock = &physical
		item.Difference = &diff
		item.Status = entity.ItemStatusCounted
		item.CountedBy = p.CountedBy
		item.CountedAt = &at
		item.Notes = p.Notes
		return repository.InventoryItems.Store(ctx, tx, item)
	}
}

// applyAdjustmentsTx lleva cada artículo con diferencia al stock físico contado y valida el
// inventario. Todo en una transacción: cualquier fallo descarta el lote completo.
func applyAdjustmentsTx(p applyPayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		inv, err := loadInventory(ctx, tx, p.InventoryID)
		if err != nil {
			return err
		}
		if inv.Status == entity.InventoryStatusValidated {
			return fmt.Errorf("%w: inventario %s ya validado", domain.ErrConflict, inv.ID)
		}
		items, err := repository.InventoryItems.LoadWhere(ctx, tx, repository.Where("inventoryId", inv.ID))
		if err != nil {
			return err
		}
		at := p.At
		for _, item := range items {
			if !inventory.NeedsAdjustment(item) {
				continue
			}
			a, err := loadArticle(ctx, tx, item.ArticleID)
			if err != nil {
				return err
			}
			a.CurrentStock = *item.PhysicalStock
			a.Status = entity.DeriveArticleStatus(a.CurrentStock, a.MinStock)
			a.UpdatedAt = at
			if err := repository.Articles.Store(ctx, tx, a); err != nil {
				return err
			}
			item.Status = entity.ItemStatusValidated
			item.ValidatedBy = p.AppliedBy
			item.ValidatedAt = &at
			if err := repository.InventoryItems.Store(ctx, tx, item); err != nil {
				return err
			}
		}
		inv.Status = entity.InventoryStatusValidated
		inv.ValidatedBy = p.AppliedBy
		inv.ValidatedAt = &at
		inv.UpdatedAt = at
		return repository.Inventories.Store(ctx, tx, inv)
	}
}
