package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Colecciones del almacén remoto.
const (
	CollectionArticles          = "articles"
	CollectionMovements         = "movements"
	CollectionInventories       = "inventories"
	CollectionInventoryItems    = "inventory_items"
	CollectionSuppliers         = "suppliers"
	CollectionAppliedOperations = "_applied_operations"
)

// Estados derivados del artículo.
const (
	ArticleStatusNormal = "normal"
	ArticleStatusLow    = "low"
	ArticleStatusOut    = "out"
)

// Article representa un artículo (SKU) con su stock disponible.
// CurrentStock y Status solo cambian a través del libro de movimientos o de la conciliación
// de inventario; Status es siempre función de CurrentStock y MinStock.
type Article struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"` // único, asignado externamente
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Unit         string          `json:"unit"`
	CurrentStock int             `json:"currentStock"`
	MinStock     int             `json:"minStock"`
	MaxStock     int             `json:"maxStock"`
	Status       string          `json:"status"`
	UnitCost     decimal.Decimal `json:"unitCost"` // costo promedio ponderado
	SupplierID   string          `json:"supplierId,omitempty"`
	BatchNumber  string          `json:"batchNumber,omitempty"`
	ExpiryDate   *time.Time      `json:"expiryDate,omitempty"`
	Location     string          `json:"location,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// EntityID implementa repository.Identifiable.
func (a *Article) EntityID() string { return a.ID }

// Sanitize normaliza un documento leído: stock nunca negativo y estado re-derivado.
func (a *Article) Sanitize() {
	if a.CurrentStock < 0 {
		a.CurrentStock = 0
	}
	if a.MinStock < 0 {
		a.MinStock = 0
	}
	if a.MaxStock < 0 {
		a.MaxStock = 0
	}
	a.Status = DeriveArticleStatus(a.CurrentStock, a.MinStock)
}

// DeriveArticleStatus: out si stock==0, low si stock <= minStock, normal en otro caso.
func DeriveArticleStatus(stock, minStock int) string {
	switch {
	case stock <= 0:
		return ArticleStatusOut
	case stock <= minStock:
		return ArticleStatusLow
	default:
		return ArticleStatusNormal
	}
}
