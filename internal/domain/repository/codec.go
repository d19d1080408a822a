package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Identifiable entidad con id de documento.
type Identifiable interface {
	EntityID() string
}

// Sanitizer normaliza una entidad justo después de leerla del almacén.
type Sanitizer interface {
	Sanitize()
}

// Entity restricción de los tipos manejados por Codec: puntero a struct identificable y saneable.
type Entity[T any] interface {
	*T
	Identifiable
	Sanitizer
}

// Codec convierte entre Document y la entidad tipada de una colección.
// Decode siempre ejecuta Sanitize: ningún documento crudo llega a la lógica de negocio.
type Codec[T any, PT Entity[T]] struct {
	Collection string
}

// NewCodec construye el codec de una colección.
func NewCodec[T any, PT Entity[T]](collection string) Codec[T, PT] {
	return Codec[T, PT]{Collection: collection}
}

// Decode convierte un documento en entidad. Devuelve (nil, nil) si doc es nil.
func (c Codec[T, PT]) Decode(id string, doc Document) (PT, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.Collection, id, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.Collection, id, err)
	}
	p := PT(&v)
	p.Sanitize()
	return p, nil
}

// DecodeAll decodifica una lista; los ids se toman del campo "id" de cada documento.
func (c Codec[T, PT]) DecodeAll(docs []Document) ([]PT, error) {
	out := make([]PT, 0, len(docs))
	for _, d := range docs {
		id, _ := d["id"].(string)
		v, err := c.Decode(id, d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode convierte la entidad en documento.
func (c Codec[T, PT]) Encode(v PT) (Document, error) {
	return ToDocument(v)
}

// Load lee y decodifica la entidad dentro de tx; (nil, nil) si no existe.
func (c Codec[T, PT]) Load(ctx context.Context, tx Tx, id string) (PT, error) {
	doc, err := tx.Get(ctx, c.Collection, id)
	if err != nil {
		return nil, err
	}
	return c.Decode(id, doc)
}

// LoadWhere lista y decodifica dentro de tx.
func (c Codec[T, PT]) LoadWhere(ctx context.Context, tx Tx, filters ...Filter) ([]PT, error) {
	docs, err := tx.Query(ctx, c.Collection, filters...)
	if err != nil {
		return nil, err
	}
	return c.DecodeAll(docs)
}

// Store escribe la entidad completa dentro de tx.
func (c Codec[T, PT]) Store(ctx context.Context, tx Tx, v PT) error {
	doc, err := c.Encode(v)
	if err != nil {
		return err
	}
	return tx.Set(ctx, c.Collection, v.EntityID(), doc)
}

// ToDocument serializa cualquier valor JSON-compatible a Document.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Codecs por colección.
var (
	Articles       = NewCodec[entity.Article](entity.CollectionArticles)
	Movements      = NewCodec[entity.Movement](entity.CollectionMovements)
	Inventories    = NewCodec[entity.Inventory](entity.CollectionInventories)
	InventoryItems = NewCodec[entity.InventoryItem](entity.CollectionInventoryItems)
	Suppliers      = NewCodec[entity.Supplier](entity.CollectionSuppliers)
)
