package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const cacheKeyPrefix = "cache:"

// Cache guarda el último valor conocido de cada entidad; es el camino de lectura cuando el
// almacén remoto no responde. Se construye una vez por proceso y se inyecta.
// Si tiene KeyValueStore, cada colección modificada se persiste para sobrevivir reinicios.
type Cache struct {
	mu   sync.RWMutex
	data map[string]map[string]repository.Document

	persistMu sync.Mutex
	kv        repository.KeyValueStore
	log       *logger.Logger
}

// NewCache construye la caché. kv puede ser nil (solo memoria).
func NewCache(kv repository.KeyValueStore, log *logger.Logger) *Cache {
	return &Cache{
		data: make(map[string]map[string]repository.Document),
		kv:   kv,
		log:  log.Component("local-cache"),
	}
}

// Load restaura las colecciones persistidas en el KeyValueStore.
func (c *Cache) Load(ctx context.Context, collections ...string) error {
	if c.kv == nil {
		return nil
	}
	for _, col := range collections {
		raw, ok, err := c.kv.Get(ctx, cacheKeyPrefix+col)
		if err != nil {
			return fmt.Errorf("load cache %s: %w", col, err)
		}
		if !ok || raw == "" {
			continue
		}
		var docs map[string]repository.Document
		if err := json.Unmarshal([]byte(raw), &docs); err != nil {
			return fmt.Errorf("decode cache %s: %w", col, err)
		}
		c.mu.Lock()
		c.data[col] = docs
		c.mu.Unlock()
		c.log.Debug().Str("collection", col).Int("docs", len(docs)).Msg("caché restaurada")
	}
	return nil
}

// Get devuelve una copia del documento o nil.
func (c *Cache) Get(collection, id string) repository.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[collection][id].Clone()
}

// Query devuelve los documentos que cumplen los filtros, ordenados por id.
func (c *Cache) Query(collection string, filters ...repository.Filter) []repository.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return repository.SortedMatches(c.data[collection], filters)
}

// Len número de documentos en caché para la colección.
func (c *Cache) Len(collection string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[collection])
}

// Put reemplaza un documento.
func (c *Cache) Put(ctx context.Context, collection, id string, doc repository.Document) {
	c.Apply(ctx, []repository.Write{{Collection: collection, ID: id, Doc: doc}})
}

// Merge reemplaza varios documentos de una colección (refresco tras una lectura remota).
func (c *Cache) Merge(ctx context.Context, collection string, docs []repository.Document) {
	writes := make([]repository.Write, 0, len(docs))
	for _, d := range docs {
		id, _ := d["id"].(string)
		if id == "" {
			continue
		}
		writes = append(writes, repository.Write{Collection: collection, ID: id, Doc: d})
	}
	c.Apply(ctx, writes)
}

// Remove elimina un documento.
func (c *Cache) Remove(ctx context.Context, collection, id string) {
	c.Apply(ctx, []repository.Write{{Collection: collection, ID: id}})
}

// Apply aplica un lote de escrituras de forma atómica respecto a otros lectores.
func (c *Cache) Apply(ctx context.Context, writes []repository.Write) {
	if len(writes) == 0 {
		return
	}
	touched := make(map[string]struct{})
	c.mu.Lock()
	c.applyLocked(writes)
	for _, w := range writes {
		touched[w.Collection] = struct{}{}
	}
	c.mu.Unlock()
	c.persist(ctx, touched)
}

func (c *Cache) applyLocked(writes []repository.Write) {
	for _, w := range writes {
		if w.Doc == nil {
			delete(c.data[w.Collection], w.ID)
			continue
		}
		col, ok := c.data[w.Collection]
		if !ok {
			col = make(map[string]repository.Document)
			c.data[w.Collection] = col
		}
		d := w.Doc.Clone()
		d["id"] = w.ID
		col[w.ID] = d
	}
}

// RunTransaction ejecuta fn contra la caché con todo-o-nada local: las escrituras solo se
// aplican si fn termina sin error. Es la aplicación optimista del camino offline.
// beforeApply (opcional) corre con la caché bloqueada justo antes de aplicar; si falla no se
// aplica nada (el executor encola ahí la operación pendiente).
func (c *Cache) RunTransaction(ctx context.Context, fn repository.TxFunc, beforeApply func() error) ([]repository.Write, error) {
	c.mu.Lock()
	tx := repository.NewOverlay(cacheView{c}, nil)
	if err := fn(ctx, tx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if beforeApply != nil {
		if err := beforeApply(); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	writes := tx.Writes()
	c.applyLocked(writes)
	c.mu.Unlock()

	touched := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		touched[w.Collection] = struct{}{}
	}
	c.persist(ctx, touched)
	return writes, nil
}

// Follow se suscribe a los cambios remotos de las colecciones y los refleja en la caché.
// Devuelve una función que cancela todas las suscripciones.
func (c *Cache) Follow(ctx context.Context, store repository.RemoteStore, collections ...string) (func(), error) {
	stops := make([]func(), 0, len(collections))
	stopAll := func() {
		for _, s := range stops {
			s()
		}
	}
	for _, col := range collections {
		stop, err := store.Subscribe(ctx, col, func(ch repository.Change) {
			if ch.Type == repository.ChangeDelete {
				c.Remove(ctx, ch.Collection, ch.ID)
				return
			}
			c.Put(ctx, ch.Collection, ch.ID, ch.Doc)
		})
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", col, err)
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

func (c *Cache) persist(ctx context.Context, collections map[string]struct{}) {
	if c.kv == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	for col := range collections {
		c.mu.RLock()
		raw, err := json.Marshal(c.data[col])
		c.mu.RUnlock()
		if err == nil {
			err = c.kv.Set(ctx, cacheKeyPrefix+col, string(raw))
		}
		if err != nil {
			// La caché en memoria sigue siendo válida; solo se pierde la copia durable.
			c.log.Warn().Err(err).Str("collection", col).Msg("no se pudo persistir la caché")
		}
	}
}

// cacheView expone los datos a repository.Overlay; solo se usa con Cache.mu tomado.
type cacheView struct{ c *Cache }

func (v cacheView) Lookup(collection, id string) repository.Document {
	return v.c.data[collection][id]
}

func (v cacheView) Documents(collection string) map[string]repository.Document {
	return v.c.data[collection]
}
