// Package memstore implementa el RemoteStore en memoria (driver "memory" y doble de pruebas),
// con inyección de fallos para simular red caída, cuota agotada o escrituras que fallan.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.RemoteStore = (*Store)(nil)

// Store base documental en memoria. Las transacciones se serializan con un único mutex.
type Store struct {
	mu   sync.Mutex
	data map[string]map[string]repository.Document

	faultMu    sync.Mutex
	offlineErr error
	failWrites map[string]error // "collection/id" -> error al escribir dentro de una tx
	latency    time.Duration

	watchMu  sync.Mutex
	watchers map[int]*watcher
	nextW    int

	commits int
}

type watcher struct {
	collection string
	filters    []repository.Filter
	fn         func(repository.Change)
}

// New construye un Store vacío.
func New() *Store {
	return &Store{
		data:       make(map[string]map[string]repository.Document),
		failWrites: make(map[string]error),
		watchers:   make(map[int]*watcher),
	}
}

// SetOffline hace que toda operación falle con err (nil restablece la conexión).
func (s *Store) SetOffline(err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.offlineErr = err
}

// FailWritesTo hace fallar cualquier escritura transaccional sobre collection/id.
func (s *Store) FailWritesTo(collection, id string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.failWrites, collection+"/"+id)
		return
	}
	s.failWrites[collection+"/"+id] = err
}

// SetLatency agrega una espera a cada operación (respeta la cancelación del ctx).
func (s *Store) SetLatency(d time.Duration) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.latency = d
}

// Commits número de transacciones confirmadas.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Seed inserta documentos sin pasar por transacción ni notificar (preparación de pruebas).
func (s *Store) Seed(collection, id string, doc repository.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, doc)
}

// Count número de documentos de una colección.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[collection])
}

func (s *Store) gate(ctx context.Context) error {
	s.faultMu.Lock()
	offline, latency := s.offlineErr, s.latency
	s.faultMu.Unlock()
	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, ctx.Err())
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return offline
}

func (s *Store) writeFault(collection, id string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.failWrites[collection+"/"+id]
}

func (s *Store) put(collection, id string, doc repository.Document) {
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]repository.Document)
		s.data[collection] = col
	}
	c := doc.Clone()
	c["id"] = id
	col[id] = c
}

// Get obtiene un documento; (nil, nil) si no existe.
func (s *Store) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[collection][id].Clone(), nil
}

// Query lista documentos que cumplen los filtros, ordenados por id.
func (s *Store) Query(ctx context.Context, collection string, filters ...repository.Filter) ([]repository.Document, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return repository.SortedMatches(s.data[collection], filters), nil
}

// Create inserta un documento con id generado.
func (s *Store) Create(ctx context.Context, collection string, doc repository.Document) (string, error) {
	id := uuid.New().String()
	err := s.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Set(ctx, collection, id, doc)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update fusiona campos de primer nivel.
func (s *Store) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Update(ctx, collection, id, partial)
	})
}

// Delete elimina un documento (no falla si no existe).
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Delete(ctx, collection, id)
	})
}

// RunTransaction ejecuta fn con aislamiento serializable y aplica sus escrituras al final.
func (s *Store) RunTransaction(ctx context.Context, fn repository.TxFunc) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	tx := repository.NewOverlay(storeView{s}, s.writeFault)
	if err := fn(ctx, tx); err != nil {
		s.mu.Unlock()
		return err
	}
	// La red puede caer entre la lógica y el commit.
	if err := s.gate(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	now := time.Now()
	writes := tx.Writes()
	changes := make([]repository.Change, 0, len(writes))
	for _, w := range writes {
		if w.Doc == nil {
			delete(s.data[w.Collection], w.ID)
			changes = append(changes, repository.Change{Type: repository.ChangeDelete, Collection: w.Collection, ID: w.ID, At: now})
			continue
		}
		s.put(w.Collection, w.ID, w.Doc)
		changes = append(changes, repository.Change{Type: repository.ChangeUpsert, Collection: w.Collection, ID: w.ID, Doc: w.Doc, At: now})
	}
	s.commits++
	s.mu.Unlock()

	s.notify(changes)
	return nil
}

// Subscribe registra fn para los cambios de la colección que cumplan los filtros.
func (s *Store) Subscribe(ctx context.Context, collection string, fn func(repository.Change), filters ...repository.Filter) (func(), error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.watchMu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = &watcher{collection: collection, filters: filters, fn: fn}
	s.watchMu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

func (s *Store) notify(changes []repository.Change) {
	s.watchMu.Lock()
	ws := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.watchMu.Unlock()

	for _, ch := range changes {
		for _, w := range ws {
			if w.collection != ch.Collection {
				continue
			}
			if ch.Doc != nil && !repository.Matches(ch.Doc, w.filters) {
				continue
			}
			w.fn(ch)
		}
	}
}

// storeView expone los datos a repository.Overlay; solo se usa con Store.mu tomado.
type storeView struct{ s *Store }

func (v storeView) Lookup(collection, id string) repository.Document {
	return v.s.data[collection][id]
}

func (v storeView) Documents(collection string) map[string]repository.Document {
	return v.s.data[collection]
}
