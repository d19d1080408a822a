package entity

import (
	"encoding/json"
	"time"
)

// PendingOperation intención de escritura que falló contra el almacén remoto y espera
// ser reproducida. ID sirve también como clave de idempotencia en el remoto.
type PendingOperation struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	EntityKeys    []string        `json:"entityKeys,omitempty"` // "collection/id" tocados por la operación
	CreatedAt     time.Time       `json:"createdAt"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
}

// EntityKey clave de entidad usada para ordenar la reproducción por entidad.
func EntityKey(collection, id string) string {
	return collection + "/" + id
}

// Due indica si la operación puede intentarse en el instante now.
func (op *PendingOperation) Due(now time.Time) bool {
	return op.NextAttemptAt == nil || !now.Before(*op.NextAttemptAt)
}
