package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func TestNormalizeDocument_ConvertsBSONTypes(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":          "m-1",
		"createdAt":    primitive.NewDateTimeFromTime(at),
		"quantity":     int32(5),
		"qualityCheck": bson.M{"passed": true},
		"tags":         bson.A{"a", int32(2)},
	}

	doc := normalizeDocument(raw)

	assert.Equal(t, "m-1", doc["id"])
	_, hasMongoID := doc["_id"]
	assert.False(t, hasMongoID)
	assert.Equal(t, at, doc["createdAt"])
	assert.Equal(t, int64(5), doc["quantity"])
	assert.Equal(t, map[string]any{"passed": true}, doc["qualityCheck"])
	assert.Equal(t, []any{"a", int64(2)}, doc["tags"])
}

func TestNormalizeDocument_MatchesNumericFilters(t *testing.T) {
	doc := normalizeDocument(bson.M{"_id": "a-1", "minStock": int32(10)})
	assert.True(t, repository.Matches(doc, []repository.Filter{repository.Where("minStock", 10)}))
}

func TestToBSON_SetsBothIDs(t *testing.T) {
	out := toBSON("a-1", repository.Document{"code": "A-1", "id": "otro"})
	assert.Equal(t, "a-1", out["_id"])
	assert.Equal(t, "a-1", out["id"])
	assert.Equal(t, "A-1", out["code"])
}

func TestToFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, toFilter(nil))
	assert.Equal(t, bson.M{"status": "pending", "articleId": "a-1"},
		toFilter([]repository.Filter{repository.Where("status", "pending"), repository.Where("articleId", "a-1")}))
}

// ── mapError ─────────────────────────────────────────────────────────────────

func TestMapError_QuotaCodes(t *testing.T) {
	err := mapError(mongo.CommandError{Code: codeQuotaExceeded, Message: "space quota exceeded"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestMapError_SteppedDownIsUnavailable(t *testing.T) {
	err := mapError(mongo.CommandError{Code: codePrimarySteppedDown})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestMapError_ClientDisconnected(t *testing.T) {
	assert.ErrorIs(t, mapError(mongo.ErrClientDisconnected), domain.ErrRemoteUnavailable)
}

func TestMapError_BusinessAndUnknownUnchanged(t *testing.T) {
	assert.ErrorIs(t, mapError(domain.ErrConflict), domain.ErrConflict)
	other := errors.New("bad value")
	assert.Same(t, other, mapError(other))
}

func TestMapError_SinServidoresEsNoDisponible(t *testing.T) {
	err := mapError(topology.ServerSelectionError{Wrapped: errors.New("connection refused")})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestNextBackoff_DuplicaHastaElMaximo(t *testing.T) {
	assert.Equal(t, 2*watchBackoffMin, nextBackoff(watchBackoffMin))
	assert.Equal(t, watchBackoffMax, nextBackoff(watchBackoffMax))
}

// Sin servidor el store se crea igual y las operaciones informan indisponibilidad.
func TestConnect_SinServidorNoFalla(t *testing.T) {
	store, err := Connect(context.Background(), config.MongoConfig{URI: "mongodb://127.0.0.1:1", Database: "stock"}, logger.Nop())
	require.NoError(t, err)
	defer store.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = store.Get(ctx, "articles", "a1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	stop, err := store.Subscribe(context.Background(), "articles", func(repository.Change) {})
	require.NoError(t, err, "la suscripción reintenta en segundo plano")
	stop()
}
