package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const (
	queueKey      = "pending_operations"
	deadLetterKey = "pending_operations_dead"
)

// Queue cola durable y ordenada (FIFO) de operaciones pendientes de sincronizar.
// Se persiste completa en el KeyValueStore en cada cambio; la entrega es at-least-once.
type Queue struct {
	mu     sync.Mutex
	kv     repository.KeyValueStore
	loaded bool
	ops    []entity.PendingOperation
	dead   []entity.PendingOperation
	log    *logger.Logger
}

// NewQueue construye la cola sobre el almacenamiento local.
func NewQueue(kv repository.KeyValueStore, log *logger.Logger) *Queue {
	return &Queue{kv: kv, log: log.Component("pending-queue")}
}

func (q *Queue) loadLocked(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	ops, err := q.read(ctx, queueKey)
	if err != nil {
		return err
	}
	dead, err := q.read(ctx, deadLetterKey)
	if err != nil {
		return err
	}
	q.ops, q.dead, q.loaded = ops, dead, true
	return nil
}

func (q *Queue) read(ctx context.Context, key string) ([]entity.PendingOperation, error) {
	raw, ok, err := q.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var ops []entity.PendingOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return ops, nil
}

func (q *Queue) write(ctx context.Context, key string, ops []entity.PendingOperation) error {
	if ops == nil {
		ops = []entity.PendingOperation{}
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := q.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Enqueue agrega op al final de la cola y la persiste. Un ID ya encolado se ignora.
func (q *Queue) Enqueue(ctx context.Context, op entity.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return err
	}
	for _, existing := range q.ops {
		if existing.ID == op.ID {
			return nil
		}
	}
	q.ops = append(q.ops, op)
	if err := q.write(ctx, queueKey, q.ops); err != nil {
		q.ops = q.ops[:len(q.ops)-1]
		return err
	}
	q.log.Debug().Str("op_id", op.ID).Str("kind", op.Kind).Int("depth", len(q.ops)).Msg("operación encolada")
	return nil
}

// Snapshot copia de la cola en orden de creación.
func (q *Queue) Snapshot(ctx context.Context) ([]entity.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]entity.PendingOperation, len(q.ops))
	copy(out, q.ops)
	return out, nil
}

// Len profundidad de la cola.
func (q *Queue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(q.ops), nil
}

// Settle reescribe la cola al terminar una pasada de sincronización: quita las operaciones
// en done, reemplaza las de retry (intentos/backoff actualizados) y mueve dead a la cola de
// descartes. Las operaciones encoladas durante la pasada se conservan.
func (q *Queue) Settle(ctx context.Context, done []string, retry, dead []entity.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(done)+len(dead))
	for _, id := range done {
		drop[id] = struct{}{}
	}
	for _, op := range dead {
		drop[op.ID] = struct{}{}
	}
	updated := make(map[string]entity.PendingOperation, len(retry))
	for _, op := range retry {
		updated[op.ID] = op
	}

	kept := make([]entity.PendingOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if _, ok := drop[op.ID]; ok {
			continue
		}
		if u, ok := updated[op.ID]; ok {
			op = u
		}
		kept = append(kept, op)
	}
	// Los descartes se persisten primero: si falla la cola, la operación sigue en ambas
	// listas y se reintenta en lugar de perderse.
	if len(dead) > 0 {
		deadLetters := make([]entity.PendingOperation, 0, len(q.dead)+len(dead))
		deadLetters = append(append(deadLetters, q.dead...), dead...)
		if err := q.write(ctx, deadLetterKey, deadLetters); err != nil {
			return err
		}
		q.dead = deadLetters
	}
	if err := q.write(ctx, queueKey, kept); err != nil {
		return err
	}
	q.ops = kept
	return nil
}

// DeadLetters operaciones descartadas tras agotar reintentos.
func (q *Queue) DeadLetters(ctx context.Context) ([]entity.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]entity.PendingOperation, len(q.dead))
	copy(out, q.dead)
	return out, nil
}

// RequeueDeadLetters devuelve las operaciones descartadas a la cola con los intentos a cero.
func (q *Queue) RequeueDeadLetters(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return 0, err
	}
	n := len(q.dead)
	if n == 0 {
		return 0, nil
	}
	ops := make([]entity.PendingOperation, 0, len(q.ops)+n)
	ops = append(ops, q.ops...)
	for _, op := range q.dead {
		op.Attempts = 0
		op.NextAttemptAt = nil
		ops = append(ops, op)
	}
	if err := q.write(ctx, queueKey, ops); err != nil {
		return 0, err
	}
	q.ops = ops
	if err := q.write(ctx, deadLetterKey, nil); err != nil {
		return n, err
	}
	q.dead = nil
	return n, nil
}

// Ahead devuelve, en orden de creación, las operaciones pendientes que deben aplicarse antes
// de una nueva escritura sobre keys: las que comparten alguna clave de entidad y, de forma
// transitiva, las anteriores que comparten claves con esas.
func (q *Queue) Ahead(ctx context.Context, keys []string) ([]entity.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return nil, err
	}
	if len(q.ops) == 0 || len(keys) == 0 {
		return nil, nil
	}
	touched := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		touched[k] = struct{}{}
	}
	selected := make([]bool, len(q.ops))
	n := 0
	for i := len(q.ops) - 1; i >= 0; i-- {
		op := q.ops[i]
		if !sharesKey(op.EntityKeys, touched) {
			continue
		}
		selected[i] = true
		n++
		for _, k := range op.EntityKeys {
			touched[k] = struct{}{}
		}
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]entity.PendingOperation, 0, n)
	for i, op := range q.ops {
		if selected[i] {
			out = append(out, op)
		}
	}
	return out, nil
}

func sharesKey(keys []string, set map[string]struct{}) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
