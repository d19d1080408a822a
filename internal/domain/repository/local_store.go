package repository

import "context"

// KeyValueStore almacenamiento local durable clave -> texto (sobrevive reinicios del proceso).
// Persiste la cola de operaciones pendientes y las fotos de la caché local.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
