package dto

import "time"

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// DefaultPage aplica valores por defecto si Limit/Offset son cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse metadatos de página en respuestas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total,omitempty"`
}

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteResult resultado de una escritura: confirmada en el servidor o guardada en local
// pendiente de sincronizar (synced=false, con aviso para el usuario).
type WriteResult struct {
	OperationID string `json:"operation_id"`
	Synced      bool   `json:"synced"`
	Warning     string `json:"warning,omitempty"`
	Advisory    string `json:"advisory,omitempty"`
}

// SyncStatusResponse estado de la cola de sincronización.
type SyncStatusResponse struct {
	Pending     int              `json:"pending"`
	DeadLetters int              `json:"dead_letters"`
	LastRun     *SyncRunResponse `json:"last_run,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

// SyncRunResponse resultado de una pasada de sincronización.
type SyncRunResponse struct {
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Dropped     int       `json:"dropped"`
	Failed      int       `json:"failed"`
	Deferred    int       `json:"deferred"`
	DeadLetters int       `json:"dead_letters"`
	Remaining   int       `json:"remaining"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}
