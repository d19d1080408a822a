package entity

import "time"

// Ciclo de vida lineal de un inventario.
const (
	InventoryStatusPlanned    = "planned"
	InventoryStatusInProgress = "in_progress"
	InventoryStatusCompleted  = "completed"
	InventoryStatusValidated  = "validated"
)

// Alcance del conteo.
const (
	InventoryScopeFull    = "full"
	InventoryScopePartial = "partial"
)

// Estados de un ítem de inventario.
const (
	ItemStatusPending   = "pending"
	ItemStatusCounted   = "counted"
	ItemStatusValidated = "validated"
)

// NextInventoryStatus devuelve el sucesor en el ciclo de vida ("" si es terminal o desconocido).
func NextInventoryStatus(status string) string {
	switch status {
	case InventoryStatusPlanned:
		return InventoryStatusInProgress
	case InventoryStatusInProgress:
		return InventoryStatusCompleted
	case InventoryStatusCompleted:
		return InventoryStatusValidated
	}
	return ""
}

// Inventory es una campaña de conteo físico.
type Inventory struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Scope         string     `json:"scope"`
	Location      string     `json:"location,omitempty"`
	Status        string     `json:"status"`
	ArticlesCount int        `json:"articlesCount"`
	PlannedAt     *time.Time `json:"plannedAt,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	StartedBy     string     `json:"startedBy,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CompletedBy   string     `json:"completedBy,omitempty"`
	ValidatedAt   *time.Time `json:"validatedAt,omitempty"`
	ValidatedBy   string     `json:"validatedBy,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// EntityID implementa repository.Identifiable.
func (i *Inventory) EntityID() string { return i.ID }

// Sanitize normaliza estado y alcance.
func (i *Inventory) Sanitize() {
	switch i.Status {
	case InventoryStatusPlanned, InventoryStatusInProgress, InventoryStatusCompleted, InventoryStatusValidated:
	default:
		i.Status = InventoryStatusPlanned
	}
	if i.Scope != InventoryScopePartial {
		i.Scope = InventoryScopeFull
	}
	if i.ArticlesCount < 0 {
		i.ArticlesCount = 0
	}
}

// InventoryItem compara el stock teórico (foto al generar) con el conteo físico de un artículo.
type InventoryItem struct {
	ID               string     `json:"id"`
	InventoryID      string     `json:"inventoryId"`
	ArticleID        string     `json:"articleId"`
	ArticleCode      string     `json:"articleCode"`
	ArticleName      string     `json:"articleName"`
	Unit             string     `json:"unit"`
	TheoreticalStock int        `json:"theoreticalStock"`
	PhysicalStock    *int       `json:"physicalStock,omitempty"`
	Difference       *int       `json:"difference,omitempty"`
	Status           string     `json:"status"`
	CountedBy        string     `json:"countedBy,omitempty"`
	CountedAt        *time.Time `json:"countedAt,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ValidatedBy      string     `json:"validatedBy,omitempty"`
	ValidatedAt      *time.Time `json:"validatedAt,omitempty"`
}

// EntityID implementa repository.Identifiable.
func (it *InventoryItem) EntityID() string { return it.ID }

// InventoryItemID id determinista de un ítem: un artículo aparece una sola vez por inventario.
func InventoryItemID(inventoryID, articleID string) string {
	return inventoryID + "_" + articleID
}

// Sanitize recalcula Difference a partir de PhysicalStock; sin conteo no hay diferencia.
func (it *InventoryItem) Sanitize() {
	switch it.Status {
	case ItemStatusPending, ItemStatusCounted, ItemStatusValidated:
	default:
		it.Status = ItemStatusPending
	}
	if it.PhysicalStock == nil {
		it.Difference = nil
		return
	}
	d := *it.PhysicalStock - it.TheoreticalStock
	it.Difference = &d
}
