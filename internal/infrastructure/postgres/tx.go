package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.Tx = (*pgTx)(nil)

// pgTx operaciones de documento atadas a una pgx.Tx.
type pgTx struct {
	q Querier
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	return getDocument(ctx, t.q, collection, id, true)
}

func (t *pgTx) Query(ctx context.Context, collection string, filters ...repository.Filter) ([]repository.Document, error) {
	return queryDocuments(ctx, t.q, collection, filters, true)
}

func (t *pgTx) Set(ctx context.Context, collection, id string, doc repository.Document) error {
	data := doc.Clone()
	if data == nil {
		data = repository.Document{}
	}
	data["id"] = id
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, raw)
	return err
}

func (t *pgTx) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	return updateDocument(ctx, t.q, collection, id, partial)
}

func (t *pgTx) Delete(ctx context.Context, collection, id string) error {
	return deleteDocument(ctx, t.q, collection, id)
}
