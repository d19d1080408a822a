package memstore

import (
	"context"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.KeyValueStore = (*KV)(nil)

// KV almacén clave/valor en memoria (pruebas y driver "memory").
type KV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

// NewKV construye un KV vacío.
func NewKV() *KV {
	return &KV{data: make(map[string]string)}
}

// SetError hace fallar todas las operaciones con err (nil restablece).
func (k *KV) SetError(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}

func (k *KV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return "", false, k.err
	}
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *KV) Set(_ context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.data[key] = value
	return nil
}
