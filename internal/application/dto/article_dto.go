package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateArticleRequest entrada para crear un artículo. El stock inicial entra por el libro
// de movimientos, no por este request.
type CreateArticleRequest struct {
	Code        string          `json:"code" validate:"required,min=1,max=50"`
	Name        string          `json:"name" validate:"required,min=1,max=200"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit" validate:"required"`
	MinStock    int             `json:"min_stock"`
	MaxStock    int             `json:"max_stock"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	SupplierID  string          `json:"supplier_id"`
	Location    string          `json:"location"`
}

// UpdateArticleRequest entrada para actualizar un artículo (sin CurrentStock ni Status).
type UpdateArticleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Unit        *string `json:"unit"`
	MinStock    *int    `json:"min_stock"`
	MaxStock    *int    `json:"max_stock"`
	SupplierID  *string `json:"supplier_id"`
	Location    *string `json:"location"`
}

// ArticleResponse salida de un artículo.
type ArticleResponse struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	CurrentStock int             `json:"current_stock"`
	MinStock     int             `json:"min_stock"`
	MaxStock     int             `json:"max_stock"`
	Status       string          `json:"status"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	Location     string          `json:"location,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ArticleWriteResponse artículo escrito más el resultado de la sincronización.
type ArticleWriteResponse struct {
	Article ArticleResponse `json:"article"`
	WriteResult
}

// ArticleListResponse lista paginada de artículos.
type ArticleListResponse struct {
	Items []ArticleResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}

// ValuationResponse valor del stock: suma de current_stock * unit_cost de los artículos.
type ValuationResponse struct {
	Status     string          `json:"status,omitempty"`
	TotalValue decimal.Decimal `json:"total_value"`
}
