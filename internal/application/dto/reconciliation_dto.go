package dto

import "time"

// CreateInventoryRequest body para POST /api/inventories.
type CreateInventoryRequest struct {
	Name      string     `json:"name" validate:"required"`
	Scope     string     `json:"scope" validate:"omitempty,oneof=full partial"`
	Location  string     `json:"location,omitempty"`
	PlannedAt *time.Time `json:"planned_at,omitempty"`
}

// TransitionRequest body para POST /api/inventories/:id/transition.
type TransitionRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// GenerateItemsRequest body para POST /api/inventories/:id/items.
type GenerateItemsRequest struct {
	ArticleIDs []string `json:"article_ids" validate:"required,min=1"`
}

// CountItemRequest body para POST /api/inventories/items/:itemId/count.
type CountItemRequest struct {
	PhysicalStock *int   `json:"physical_stock" validate:"required,min=0"`
	Notes         string `json:"notes,omitempty"`
}

// InventoryResponse salida de un inventario.
type InventoryResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Scope         string     `json:"scope"`
	Location      string     `json:"location,omitempty"`
	Status        string     `json:"status"`
	ArticlesCount int        `json:"articles_count"`
	PlannedAt     *time.Time `json:"planned_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StartedBy     string     `json:"started_by,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedBy   string     `json:"completed_by,omitempty"`
	ValidatedAt   *time.Time `json:"validated_at,omitempty"`
	ValidatedBy   string     `json:"validated_by,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// InventoryWriteResponse inventario creado más el resultado de la sincronización.
type InventoryWriteResponse struct {
	Inventory InventoryResponse `json:"inventory"`
	WriteResult
}

// InventoryItemResponse salida de un ítem de inventario.
type InventoryItemResponse struct {
	ID               string     `json:"id"`
	InventoryID      string     `json:"inventory_id"`
	ArticleID        string     `json:"article_id"`
	ArticleCode      string     `json:"article_code"`
	ArticleName      string     `json:"article_name"`
	Unit             string     `json:"unit"`
	TheoreticalStock int        `json:"theoretical_stock"`
	PhysicalStock    *int       `json:"physical_stock"`
	Difference       *int       `json:"difference"`
	Status           string     `json:"status"`
	CountedBy        string     `json:"counted_by,omitempty"`
	CountedAt        *time.Time `json:"counted_at,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ValidatedBy      string     `json:"validated_by,omitempty"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
}

// ReconciliationSummaryResponse totales del conteo.
type ReconciliationSummaryResponse struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	Counted         int `json:"counted"`
	Validated       int `json:"validated"`
	WithDifference  int `json:"with_difference"`
	Surplus         int `json:"surplus"`
	Shortage        int `json:"shortage"`
	NetDifference   int `json:"net_difference"`
	AccuracyPercent int `json:"accuracy_percent"`
}

// InventoryItemListResponse ítems del inventario con su resumen.
type InventoryItemListResponse struct {
	Items   []InventoryItemResponse       `json:"items"`
	Summary ReconciliationSummaryResponse `json:"summary"`
}
