package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Write escritura confirmada de un documento completo; Doc nil significa borrado.
type Write struct {
	Collection string
	ID         string
	Doc        Document
}

// View vista de solo lectura sobre la que Overlay apila escrituras. Los mapas devueltos
// no se modifican.
type View interface {
	Lookup(collection, id string) Document
	Documents(collection string) map[string]Document
}

// Overlay implementa Tx preparando escrituras sobre una View; nada toca la vista hasta
// que el dueño aplica Writes(). Usado por el almacén en memoria y por la caché local.
type Overlay struct {
	base   View
	guard  func(collection, id string) error
	staged map[string]map[string]Document
	order  []Write
}

var _ Tx = (*Overlay)(nil)

// NewOverlay construye un Overlay. guard (opcional) puede vetar escrituras.
func NewOverlay(base View, guard func(collection, id string) error) *Overlay {
	return &Overlay{base: base, guard: guard, staged: make(map[string]map[string]Document)}
}

func (o *Overlay) lookup(collection, id string) Document {
	if col, ok := o.staged[collection]; ok {
		if d, ok := col[id]; ok {
			return d
		}
	}
	return o.base.Lookup(collection, id)
}

func (o *Overlay) stage(collection, id string, doc Document) error {
	if o.guard != nil {
		if err := o.guard(collection, id); err != nil {
			return err
		}
	}
	col, ok := o.staged[collection]
	if !ok {
		col = make(map[string]Document)
		o.staged[collection] = col
	}
	if _, seen := col[id]; !seen {
		o.order = append(o.order, Write{Collection: collection, ID: id})
	}
	col[id] = doc
	return nil
}

func (o *Overlay) Get(_ context.Context, collection, id string) (Document, error) {
	return o.lookup(collection, id).Clone(), nil
}

func (o *Overlay) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	merged := make(map[string]Document)
	for id, d := range o.base.Documents(collection) {
		merged[id] = d
	}
	for id, d := range o.staged[collection] {
		if d == nil {
			delete(merged, id)
			continue
		}
		merged[id] = d
	}
	return SortedMatches(merged, filters), nil
}

func (o *Overlay) Set(_ context.Context, collection, id string, doc Document) error {
	c := doc.Clone()
	if c == nil {
		c = Document{}
	}
	c["id"] = id
	return o.stage(collection, id, c)
}

func (o *Overlay) Update(_ context.Context, collection, id string, partial Document) error {
	cur := o.lookup(collection, id)
	if cur == nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	next := cur.Clone()
	for k, v := range partial.Clone() {
		next[k] = v
	}
	next["id"] = id
	return o.stage(collection, id, next)
}

func (o *Overlay) Delete(_ context.Context, collection, id string) error {
	return o.stage(collection, id, nil)
}

// Writes devuelve las escrituras preparadas en orden de primer acceso, con su estado final.
func (o *Overlay) Writes() []Write {
	out := make([]Write, 0, len(o.order))
	for _, w := range o.order {
		out = append(out, Write{Collection: w.Collection, ID: w.ID, Doc: o.staged[w.Collection][w.ID].Clone()})
	}
	return out
}

// SortedMatches filtra docs y los devuelve clonados y ordenados por id.
func SortedMatches(docs map[string]Document, filters []Filter) []Document {
	ids := make([]string, 0, len(docs))
	for id, d := range docs {
		if Matches(d, filters) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, docs[id].Clone())
	}
	return out
}
