package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// Tipos de operación genéricos sobre documentos.
const (
	KindDocumentSet    = "document.set"
	KindDocumentUpdate = "document.update"
	KindDocumentDelete = "document.delete"
)

// DocumentPayload payload de las operaciones genéricas.
type DocumentPayload struct {
	Collection string              `json:"collection"`
	ID         string              `json:"id"`
	Doc        repository.Document `json:"doc,omitempty"`
}

// RegisterDocumentHandlers registra las operaciones document.set/update/delete.
func RegisterDocumentHandlers(r *Registry) {
	r.Register(KindDocumentSet, func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := decodeDocumentPayload(raw)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, tx repository.Tx) error {
			return tx.Set(ctx, p.Collection, p.ID, p.Doc)
		}, nil
	})
	r.Register(KindDocumentUpdate, func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := decodeDocumentPayload(raw)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, tx repository.Tx) error {
			return tx.Update(ctx, p.Collection, p.ID, p.Doc)
		}, nil
	})
	r.Register(KindDocumentDelete, func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := decodeDocumentPayload(raw)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, tx repository.Tx) error {
			return tx.Delete(ctx, p.Collection, p.ID)
		}, nil
	})
}

func decodeDocumentPayload(raw json.RawMessage) (DocumentPayload, error) {
	p, err := Decode[DocumentPayload](raw)
	if err != nil {
		return p, err
	}
	if p.Collection == "" || p.ID == "" {
		return p, fmt.Errorf("colección e id requeridos")
	}
	return p, nil
}

// Repository acceso tipado a una colección con lectura remota y caída a la caché local,
// y escrituras por el camino write-through del Executor.
type Repository[T any, PT repository.Entity[T]] struct {
	codec    repository.Codec[T, PT]
	store    repository.RemoteStore
	cache    *Cache
	executor *Executor
	log      *logger.Logger
}

// NewRepository construye el repositorio de la colección del codec.
func NewRepository[T any, PT repository.Entity[T]](codec repository.Codec[T, PT], store repository.RemoteStore, cache *Cache, executor *Executor, log *logger.Logger) *Repository[T, PT] {
	return &Repository[T, PT]{
		codec:    codec,
		store:    store,
		cache:    cache,
		executor: executor,
		log:      log.Component("repository." + codec.Collection),
	}
}

// Collection nombre de la colección.
func (r *Repository[T, PT]) Collection() string { return r.codec.Collection }

// Get devuelve la entidad o (nil, nil) si no existe. Si el remoto no responde se sirve
// el último valor conocido de la caché.
func (r *Repository[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	rctx, cancel := context.WithTimeout(ctx, r.executor.timeout)
	defer cancel()
	doc, err := r.store.Get(rctx, r.codec.Collection, id)
	if err != nil {
		if !r.fallback(ctx, err) {
			return nil, fmt.Errorf("get %s/%s: %w", r.codec.Collection, id, err)
		}
		r.log.Debug().Err(err).Str("id", id).Msg("lectura desde caché local")
		return r.codec.Decode(id, r.cache.Get(r.codec.Collection, id))
	}
	if doc == nil {
		r.cache.Remove(ctx, r.codec.Collection, id)
		return nil, nil
	}
	r.cache.Put(ctx, r.codec.Collection, id, doc)
	return r.codec.Decode(id, doc)
}

// List devuelve las entidades que cumplen los filtros; cae a la caché si el remoto falla.
func (r *Repository[T, PT]) List(ctx context.Context, filters ...repository.Filter) ([]PT, error) {
	rctx, cancel := context.WithTimeout(ctx, r.executor.timeout)
	defer cancel()
	docs, err := r.store.Query(rctx, r.codec.Collection, filters...)
	if err != nil {
		if !r.fallback(ctx, err) {
			return nil, fmt.Errorf("list %s: %w", r.codec.Collection, err)
		}
		r.log.Debug().Err(err).Msg("listado desde caché local")
		return r.codec.DecodeAll(r.cache.Query(r.codec.Collection, filters...))
	}
	r.cache.Merge(ctx, r.codec.Collection, docs)
	return r.codec.DecodeAll(docs)
}

// SumProduct suma a*b sobre las entidades que cumplen los filtros. Si el remoto sabe agregar
// se calcula allí; si no, o si no responde, se suma sobre los documentos leídos o la caché.
func (r *Repository[T, PT]) SumProduct(ctx context.Context, a, b string, filters ...repository.Filter) (decimal.Decimal, error) {
	rctx, cancel := context.WithTimeout(ctx, r.executor.timeout)
	defer cancel()
	var (
		docs []repository.Document
		err  error
	)
	if agg, ok := r.store.(repository.Aggregator); ok {
		var total decimal.Decimal
		total, err = agg.SumProduct(rctx, r.codec.Collection, a, b, filters...)
		if err == nil {
			return total, nil
		}
	} else {
		docs, err = r.store.Query(rctx, r.codec.Collection, filters...)
		if err == nil {
			r.cache.Merge(ctx, r.codec.Collection, docs)
		}
	}
	if err != nil {
		if !r.fallback(ctx, err) {
			return decimal.Zero, fmt.Errorf("sum %s: %w", r.codec.Collection, err)
		}
		r.log.Debug().Err(err).Msg("agregado desde caché local")
		docs = r.cache.Query(r.codec.Collection, filters...)
	}
	return repository.SumProduct(docs, a, b)
}

// Save escribe la entidad completa.
func (r *Repository[T, PT]) Save(ctx context.Context, v PT) (Outcome, error) {
	id := v.EntityID()
	if id == "" {
		return Outcome{}, fmt.Errorf("%w: id requerido", domain.ErrInvalidInput)
	}
	doc, err := r.codec.Encode(v)
	if err != nil {
		return Outcome{}, err
	}
	return r.execute(ctx, KindDocumentSet, DocumentPayload{Collection: r.codec.Collection, ID: id, Doc: doc})
}

// Patch fusiona campos de primer nivel; ErrNotFound si no existe.
func (r *Repository[T, PT]) Patch(ctx context.Context, id string, partial repository.Document) (Outcome, error) {
	if id == "" {
		return Outcome{}, fmt.Errorf("%w: id requerido", domain.ErrInvalidInput)
	}
	return r.execute(ctx, KindDocumentUpdate, DocumentPayload{Collection: r.codec.Collection, ID: id, Doc: partial})
}

// Delete elimina la entidad.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) (Outcome, error) {
	if id == "" {
		return Outcome{}, fmt.Errorf("%w: id requerido", domain.ErrInvalidInput)
	}
	return r.execute(ctx, KindDocumentDelete, DocumentPayload{Collection: r.codec.Collection, ID: id})
}

func (r *Repository[T, PT]) execute(ctx context.Context, kind string, p DocumentPayload) (Outcome, error) {
	op, err := NewOperation(kind, p, entity.EntityKey(p.Collection, p.ID))
	if err != nil {
		return Outcome{}, err
	}
	return r.executor.Execute(ctx, op)
}

// fallback indica si err permite servir la lectura desde la caché.
func (r *Repository[T, PT]) fallback(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !domain.IsBusiness(err)
}
