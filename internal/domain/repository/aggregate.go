package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregator lo implementan los almacenes remotos que calculan sumas en el servidor.
type Aggregator interface {
	// SumProduct suma a*b sobre los documentos de la colección que cumplen los filtros.
	// Los documentos sin alguno de los dos campos no cuentan.
	SumProduct(ctx context.Context, collection, a, b string, filters ...Filter) (decimal.Decimal, error)
}

// SumProduct calcula lo mismo que Aggregator.SumProduct sobre documentos ya leídos.
func SumProduct(docs []Document, a, b string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, doc := range docs {
		va, okA := doc[a]
		vb, okB := doc[b]
		if !okA || !okB || va == nil || vb == nil {
			continue
		}
		da, err := toDecimal(va)
		if err != nil {
			return decimal.Zero, fmt.Errorf("campo %s: %w", a, err)
		}
		db, err := toDecimal(vb)
		if err != nil {
			return decimal.Zero, fmt.Errorf("campo %s: %w", b, err)
		}
		total = total.Add(da.Mul(db))
	}
	return total, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case string:
		return decimal.NewFromString(n)
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	}
	return decimal.Zero, fmt.Errorf("valor no numérico %T", v)
}
