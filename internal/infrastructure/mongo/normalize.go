package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// toBSON prepara doc para escribirlo con _id = id; el campo id se conserva para los lectores.
func toBSON(id string, doc repository.Document) bson.M {
	out := bson.M{}
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	out["id"] = id
	return out
}

func toFilter(filters []repository.Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		out[f.Field] = f.Value
	}
	return out
}

// normalizeDocument convierte tipos BSON a los tipos planos que entienden el códec JSON
// y repository.Matches: fechas a time.Time, arreglos a []any, subdocumentos a map[string]any.
func normalizeDocument(raw bson.M) repository.Document {
	doc := make(repository.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = normalizeValue(v)
	}
	if id, ok := raw["_id"].(string); ok {
		doc["id"] = id
	}
	return doc
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	case bson.M:
		return map[string]any(normalizeDocument(t))
	case bson.D:
		return map[string]any(normalizeDocument(t.Map()))
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	default:
		return v
	}
}
