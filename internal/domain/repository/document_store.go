package repository

import (
	"context"
	"time"
)

// Document documento tal como lo expone el almacén remoto (mapa campo -> valor).
type Document map[string]any

// Clone copia superficial más copia de mapas y slices anidados.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Filter condición de igualdad sobre un campo de primer nivel. Varios filtros se combinan con AND.
type Filter struct {
	Field string
	Value any
}

// Where construye un Filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// ChangeType tipo de cambio notificado por Subscribe.
type ChangeType string

const (
	ChangeUpsert ChangeType = "upsert"
	ChangeDelete ChangeType = "delete"
)

// Change notificación push de un documento modificado.
type Change struct {
	Type       ChangeType
	Collection string
	ID         string
	Doc        Document // nil en borrados
	At         time.Time
}

// Tx operaciones disponibles dentro de una transacción; sus efectos se aplican
// atómicamente al confirmar. Get devuelve (nil, nil) si el documento no existe.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update fusiona campos de primer nivel; domain.ErrNotFound si el documento no existe.
	Update(ctx context.Context, collection, id string, partial Document) error
	Delete(ctx context.Context, collection, id string) error
}

// TxFunc función ejecutada por RunTransaction. Si devuelve error la transacción se descarta.
type TxFunc func(ctx context.Context, tx Tx) error

// RemoteStore define el puerto hacia la base documental remota (única fuente de verdad).
// Los adaptadores traducen sus errores de red/timeout a domain.ErrRemoteUnavailable
// y los de cuota a domain.ErrQuotaExceeded.
type RemoteStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Create(ctx context.Context, collection string, doc Document) (string, error)
	Update(ctx context.Context, collection, id string, partial Document) error
	Delete(ctx context.Context, collection, id string) error
	RunTransaction(ctx context.Context, fn TxFunc) error
	// Subscribe entrega cambios de la colección hasta que ctx se cancela o se invoca stop.
	Subscribe(ctx context.Context, collection string, fn func(Change), filters ...Filter) (stop func(), err error)
}

// Matches indica si doc cumple todos los filtros (igualdad, comparando valores normalizados).
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
