package inventory

import "github.com/jhoicas/stock-ledger/internal/domain/entity"

// Difference devuelve physical - theoretical.
func Difference(physical, theoretical int) int {
	return physical - theoretical
}

// NeedsAdjustment indica si un ítem debe corregir el stock del artículo al aplicar ajustes:
// contado y con diferencia distinta de cero.
func NeedsAdjustment(item *entity.InventoryItem) bool {
	if item == nil || item.Status != entity.ItemStatusCounted || item.PhysicalStock == nil {
		return false
	}
	return Difference(*item.PhysicalStock, item.TheoreticalStock) != 0
}

// Summary resumen de una campaña de conteo.
type Summary struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	Counted         int `json:"counted"`
	Validated       int `json:"validated"`
	WithDifference  int `json:"withDifference"`
	Surplus         int `json:"surplus"`  // suma de diferencias positivas
	Shortage        int `json:"shortage"` // suma (en valor absoluto) de diferencias negativas
	NetDifference   int `json:"netDifference"`
	AccuracyPercent int `json:"accuracyPercent"` // ítems contados sin diferencia / contados
}

// Summarize calcula el resumen a partir de los ítems de un inventario.
func Summarize(items []*entity.InventoryItem) Summary {
	var s Summary
	exact := 0
	for _, it := range items {
		s.Total++
		switch it.Status {
		case entity.ItemStatusPending:
			s.Pending++
		case entity.ItemStatusCounted:
			s.Counted++
		case entity.ItemStatusValidated:
			s.Validated++
		}
		if it.PhysicalStock == nil {
			continue
		}
		d := Difference(*it.PhysicalStock, it.TheoreticalStock)
		switch {
		case d > 0:
			s.WithDifference++
			s.Surplus += d
		case d < 0:
			s.WithDifference++
			s.Shortage += -d
		default:
			exact++
		}
		s.NetDifference += d
	}
	if measured := s.Counted + s.Validated; measured > 0 {
		s.AccuracyPercent = exact * 100 / measured
	}
	return s
}
