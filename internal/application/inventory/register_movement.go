package inventory

import (
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

// EntryFromRequest adapta el request HTTP de entrada a EntryInput.
// userID viene del token, nunca del body.
func EntryFromRequest(userID string, in dto.RegisterEntryRequest) EntryInput {
	out := EntryInput{
		ArticleID:   in.ArticleID,
		Quantity:    in.Quantity,
		UserID:      userID,
		Reason:      in.Reason,
		Reference:   in.Reference,
		SupplierID:  in.SupplierID,
		BatchNumber: in.BatchNumber,
		ExpiryDate:  in.ExpiryDate,
		Location:    in.Location,
		UnitCost:    in.UnitCost,
	}
	if in.QualityCheck != nil {
		out.QualityCheck = &entity.QualityCheck{Passed: in.QualityCheck.Passed, Notes: in.QualityCheck.Notes}
	}
	return out
}

// ExitFromRequest adapta el request HTTP de salida a ExitInput.
func ExitFromRequest(userID string, in dto.RegisterExitRequest) ExitInput {
	return ExitInput{
		ArticleID:   in.ArticleID,
		Quantity:    in.Quantity,
		UserID:      userID,
		Reason:      in.Reason,
		Reference:   in.Reference,
		Destination: in.Destination,
	}
}

// InventoryFromRequest adapta el request de creación de inventario.
func InventoryFromRequest(userID string, in dto.CreateInventoryRequest) CreateInventoryInput {
	return CreateInventoryInput{
		Name:      in.Name,
		Scope:     in.Scope,
		Location:  in.Location,
		PlannedAt: in.PlannedAt,
		UserID:    userID,
	}
}

// WriteResultOf convierte el resultado de una escritura en su DTO.
func WriteResultOf(out offline.Outcome) dto.WriteResult {
	return dto.WriteResult{
		OperationID: out.OperationID,
		Synced:      out.Synced,
		Warning:     string(out.Warning),
		Advisory:    out.Advisory,
	}
}

// ReceiptToResponse convierte el recibo de un movimiento en su DTO.
func ReceiptToResponse(r *MovementReceipt) dto.MovementReceiptResponse {
	return dto.MovementReceiptResponse{
		MovementID:    r.MovementID,
		Status:        r.Status,
		NewStock:      r.NewStock,
		ArticleStatus: r.ArticleStatus,
		WriteResult: dto.WriteResult{
			OperationID: r.OperationID,
			Synced:      r.Synced,
			Warning:     string(r.Warning),
			Advisory:    r.Advisory,
		},
	}
}

// MovementToResponse convierte la entidad en DTO.
func MovementToResponse(m *entity.Movement) dto.MovementResponse {
	out := dto.MovementResponse{
		ID:              m.ID,
		Type:            m.Type,
		ArticleID:       m.ArticleID,
		ArticleCode:     m.ArticleCode,
		ArticleName:     m.ArticleName,
		Unit:            m.Unit,
		Quantity:        m.Quantity,
		PreviousStock:   m.PreviousStock,
		NewStock:        m.NewStock,
		Status:          m.Status,
		Reason:          m.Reason,
		Reference:       m.Reference,
		SupplierID:      m.SupplierID,
		Destination:     m.Destination,
		BatchNumber:     m.BatchNumber,
		ExpiryDate:      m.ExpiryDate,
		Location:        m.Location,
		UnitCost:        m.UnitCost,
		TotalCost:       m.TotalCost,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		ValidatedBy:     m.ValidatedBy,
		ValidatedAt:     m.ValidatedAt,
		RejectionReason: m.RejectionReason,
	}
	if m.QualityCheck != nil {
		out.QualityCheck = &dto.QualityCheckRequest{Passed: m.QualityCheck.Passed, Notes: m.QualityCheck.Notes}
	}
	return out
}

// InventoryToResponse convierte la entidad en DTO.
func InventoryToResponse(i *entity.Inventory) dto.InventoryResponse {
	return dto.InventoryResponse{
		ID:            i.ID,
		Name:          i.Name,
		Scope:         i.Scope,
		Location:      i.Location,
		Status:        i.Status,
		ArticlesCount: i.ArticlesCount,
		PlannedAt:     i.PlannedAt,
		StartedAt:     i.StartedAt,
		StartedBy:     i.StartedBy,
		CompletedAt:   i.CompletedAt,
		CompletedBy:   i.CompletedBy,
		ValidatedAt:   i.ValidatedAt,
		ValidatedBy:   i.ValidatedBy,
		CreatedBy:     i.CreatedBy,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// ItemToResponse convierte un ítem de inventario en DTO.
func ItemToResponse(it *entity.InventoryItem) dto.InventoryItemResponse {
	return dto.InventoryItemResponse{
		ID:               it.ID,
		InventoryID:      it.InventoryID,
		ArticleID:        it.ArticleID,
		ArticleCode:      it.ArticleCode,
		ArticleName:      it.ArticleName,
		Unit:             it.Unit,
		TheoreticalStock: it.TheoreticalStock,
		PhysicalStock:    it.PhysicalStock,
		Difference:       it.Difference,
		Status:           it.Status,
		CountedBy:        it.CountedBy,
		CountedAt:        it.CountedAt,
		Notes:            it.Notes,
		ValidatedBy:      it.ValidatedBy,
		ValidatedAt:      it.ValidatedAt,
	}
}

// SummaryToResponse convierte el resumen de conteo en DTO.
func SummaryToResponse(s inventory.Summary) dto.ReconciliationSummaryResponse {
	return dto.ReconciliationSummaryResponse{
		Total:           s.Total,
		Pending:         s.Pending,
		Counted:         s.Counted,
		Validated:       s.Validated,
		WithDifference:  s.WithDifference,
		Surplus:         s.Surplus,
		Shortage:        s.Shortage,
		NetDifference:   s.NetDifference,
		AccuracyPercent: s.AccuracyPercent,
	}
}
