package offline

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Handler reconstruye la función transaccional de una operación a partir de su payload.
// El mismo Handler sirve al camino en línea y a la reproducción desde la cola.
type Handler func(payload json.RawMessage) (repository.TxFunc, error)

// Registry asocia cada tipo de operación con su Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry construye un registro vacío.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register asocia kind con h. Registrar dos veces el mismo kind es un error de programación.
func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[kind]; dup {
		panic("offline: handler duplicado para " + kind)
	}
	r.handlers[kind] = h
}

// Build devuelve la función transaccional de op.
func (r *Registry) Build(op entity.PendingOperation) (repository.TxFunc, error) {
	r.mu.RLock()
	h, ok := r.handlers[op.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tipo de operación desconocido %q", domain.ErrInvalidInput, op.Kind)
	}
	fn, err := h(op.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload de %s: %v", domain.ErrInvalidInput, op.Kind, err)
	}
	return fn, nil
}

// NewOperation construye una operación con clave de idempotencia nueva.
func NewOperation(kind string, payload any, entityKeys ...string) (entity.PendingOperation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return entity.PendingOperation{}, fmt.Errorf("encode payload %s: %w", kind, err)
	}
	return entity.PendingOperation{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    raw,
		EntityKeys: entityKeys,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Decode helper para Handlers: decodifica el payload en T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
