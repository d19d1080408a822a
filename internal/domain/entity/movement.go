package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de stock.
const (
	MovementTypeEntry = "entry" // entrada
	MovementTypeExit  = "exit"  // salida
)

// Estados del movimiento: pending -> validated | rejected (terminales).
const (
	MovementStatusPending   = "pending"
	MovementStatusValidated = "validated"
	MovementStatusRejected  = "rejected"
)

// QualityCheck resultado del control de calidad que acompaña una entrada.
type QualityCheck struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// Movement es un asiento del libro de stock. Inmutable salvo Status y los campos de validación.
// ArticleCode/ArticleName/Unit son una foto del artículo al crear el movimiento y no se
// re-sincronizan si el artículo cambia después.
type Movement struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	ArticleID       string          `json:"articleId"`
	ArticleCode     string          `json:"articleCode"`
	ArticleName     string          `json:"articleName"`
	Unit            string          `json:"unit"`
	Quantity        int             `json:"quantity"` // siempre > 0; el signo lo da Type
	PreviousStock   int             `json:"previousStock"`
	NewStock        int             `json:"newStock"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	SupplierID      string          `json:"supplierId,omitempty"`
	Destination     string          `json:"destination,omitempty"`
	BatchNumber     string          `json:"batchNumber,omitempty"`
	ExpiryDate      *time.Time      `json:"expiryDate,omitempty"`
	Location        string          `json:"location,omitempty"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	QualityCheck    *QualityCheck   `json:"qualityCheck,omitempty"`
	CreatedBy       string          `json:"createdBy"`
	CreatedAt       time.Time       `json:"createdAt"`
	ValidatedBy     string          `json:"validatedBy,omitempty"`
	ValidatedAt     *time.Time      `json:"validatedAt,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
}

// EntityID implementa repository.Identifiable.
func (m *Movement) EntityID() string { return m.ID }

// Delta devuelve la cantidad con signo: positiva en entradas, negativa en salidas.
func (m *Movement) Delta() int {
	if m.Type == MovementTypeExit {
		return -m.Quantity
	}
	return m.Quantity
}

// Sanitize normaliza estados desconocidos a pending (requiere validación humana).
func (m *Movement) Sanitize() {
	switch m.Status {
	case MovementStatusPending, MovementStatusValidated, MovementStatusRejected:
	default:
		m.Status = MovementStatusPending
	}
	if m.Quantity < 0 {
		m.Quantity = -m.Quantity
	}
}
