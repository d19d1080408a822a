package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// QualityCheckRequest resultado del control de calidad de una entrada.
type QualityCheckRequest struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// RegisterEntryRequest body para POST /api/movements/entries.
type RegisterEntryRequest struct {
	ArticleID    string               `json:"article_id" validate:"required"`
	Quantity     int                  `json:"quantity" validate:"required,min=1"`
	Reason       string               `json:"reason,omitempty"`
	Reference    string               `json:"reference,omitempty"`
	SupplierID   string               `json:"supplier_id,omitempty"`
	BatchNumber  string               `json:"batch_number,omitempty"`
	ExpiryDate   *time.Time           `json:"expiry_date,omitempty"`
	Location     string               `json:"location,omitempty"`
	UnitCost     *decimal.Decimal     `json:"unit_cost,omitempty"`
	QualityCheck *QualityCheckRequest `json:"quality_check,omitempty"`
}

// RegisterExitRequest body para POST /api/movements/exits.
type RegisterExitRequest struct {
	ArticleID   string `json:"article_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	Reason      string `json:"reason,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// RejectMovementRequest body para POST /api/movements/:id/reject.
type RejectMovementRequest struct {
	Reason string `json:"reason"`
}

// MovementReceiptResponse resultado de registrar una entrada o salida.
type MovementReceiptResponse struct {
	MovementID    string `json:"movement_id"`
	Status        string `json:"status"`
	NewStock      int    `json:"new_stock"`
	ArticleStatus string `json:"article_status"`
	WriteResult
}

// MovementResponse salida de un movimiento.
type MovementResponse struct {
	ID              string               `json:"id"`
	Type            string               `json:"type"`
	ArticleID       string               `json:"article_id"`
	ArticleCode     string               `json:"article_code"`
	ArticleName     string               `json:"article_name"`
	Unit            string               `json:"unit"`
	Quantity        int                  `json:"quantity"`
	PreviousStock   int                  `json:"previous_stock"`
	NewStock        int                  `json:"new_stock"`
	Status          string               `json:"status"`
	Reason          string               `json:"reason,omitempty"`
	Reference       string               `json:"reference,omitempty"`
	SupplierID      string               `json:"supplier_id,omitempty"`
	Destination     string               `json:"destination,omitempty"`
	BatchNumber     string               `json:"batch_number,omitempty"`
	ExpiryDate      *time.Time           `json:"expiry_date,omitempty"`
	Location        string               `json:"location,omitempty"`
	UnitCost        decimal.Decimal      `json:"unit_cost"`
	TotalCost       decimal.Decimal      `json:"total_cost"`
	QualityCheck    *QualityCheckRequest `json:"quality_check,omitempty"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	ValidatedBy     string               `json:"validated_by,omitempty"`
	ValidatedAt     *time.Time           `json:"validated_at,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
}

// MovementListResponse lista de movimientos.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
}
