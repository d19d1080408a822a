// Package mongo implementa el RemoteStore sobre MongoDB: una colección por tipo de documento,
// transacciones multi-documento por sesión y change streams para Subscribe.
// Las transacciones y los change streams requieren un replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var (
	_ repository.RemoteStore = (*DocumentStore)(nil)
	_ repository.Aggregator  = (*DocumentStore)(nil)
)

// Espera entre intentos de reabrir un change stream.
const (
	watchBackoffMin = 500 * time.Millisecond
	watchBackoffMax = 30 * time.Second
)

// DocumentStore adaptador MongoDB del almacén remoto.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Connect crea el cliente y devuelve el store sobre cfg.Database. El driver conecta en segundo
// plano: sin red el store se crea igual y las operaciones fallan con ErrRemoteUnavailable.
// Solo una URI inválida es error.
func Connect(ctx context.Context, cfg config.MongoConfig, log *logger.Logger) (*DocumentStore, error) {
	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("conectar mongo: %w", mapError(err))
	}
	return New(client, cfg.Database, log), nil
}

// Ping verifica la conexión; solo informativo al arrancar.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", mapError(err))
	}
	return nil
}

// New construye el store sobre un cliente ya conectado.
func New(client *mongo.Client, database string, log *logger.Logger) *DocumentStore {
	return &DocumentStore{client: client, db: client.Database(database), log: log.Component("mongo")}
}

// Close desconecta el cliente.
func (s *DocumentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Get obtiene un documento; (nil, nil) si no existe.
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	doc, err := findOne(ctx, s.db.Collection(collection), id)
	return doc, mapError(err)
}

// Query lista documentos que cumplen los filtros, ordenados por id.
func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...repository.Filter) ([]repository.Document, error) {
	docs, err := find(ctx, s.db.Collection(collection), filters)
	return docs, mapError(err)
}

// Create inserta un documento con id generado.
func (s *DocumentStore) Create(ctx context.Context, collection string, doc repository.Document) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Collection(collection).InsertOne(ctx, toBSON(id, doc))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s/%s ya existe", domain.ErrConflict, collection, id)
		}
		return "", mapError(err)
	}
	return id, nil
}

// Update fusiona campos de primer nivel; domain.ErrNotFound si el documento no existe.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	return mapError(updateOne(ctx, s.db.Collection(collection), collection, id, partial))
}

// Delete elimina un documento (no falla si no existe).
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return mapError(err)
}

// RunTransaction ejecuta fn dentro de una transacción de sesión.
// El driver reintenta fn ante errores transitorios (conflictos de escritura).
func (s *DocumentStore) RunTransaction(ctx context.Context, fn repository.TxFunc) error {
	session, err := s.client.StartSession()
	if err != nil {
		return mapError(err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, &sessionTx{db: s.db})
	})
	return mapError(err)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// SumProduct suma a*b en el servidor con aritmética Decimal128.
func (s *DocumentStore) SumProduct(ctx context.Context, collection, a, b string, filters ...repository.Filter) (decimal.Decimal, error) {
	match := toFilter(filters)
	match[a] = bson.M{"$exists": true, "$ne": nil}
	match[b] = bson.M{"$exists": true, "$ne": nil}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$multiply", Value: bson.A{
				bson.D{{Key: "$toDecimal", Value: "$" + a}},
				bson.D{{Key: "$toDecimal", Value: "$" + b}},
			}}}}}},
		}}},
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return decimal.Zero, mapError(err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(rows[0].Total.String())
}

// Subscribe abre un change stream sobre la colección. Los filtros se evalúan sobre el
// documento completo; los borrados se entregan siempre.
// Si el stream no se puede abrir o se corta, se reabre con backoff desde el último resume
// token hasta que se invoque stop; sin token se vuelve a leer la colección.
func (s *DocumentStore) Subscribe(ctx context.Context, collection string, fn func(repository.Change), filters ...repository.Filter) (func(), error) {
	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.watch(sctx, collection, fn, filters)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return stop, nil
}

func (s *DocumentStore) watch(ctx context.Context, collection string, fn func(repository.Change), filters []repository.Filter) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{
		Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}},
	}}}}}
	var token bson.Raw
	wait := watchBackoffMin
	resync := false
	for ctx.Err() == nil {
		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		if token != nil {
			opts.SetResumeAfter(token)
		}
		stream, err := s.db.Collection(collection).Watch(ctx, pipeline, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if token != nil && !errors.Is(mapError(err), domain.ErrRemoteUnavailable) {
				// Token fuera del oplog: se abre un stream nuevo y se relee la colección.
				token = nil
			}
			resync = resync || token == nil
			s.log.Warn().Err(err).Str("collection", collection).Dur("retry_in", wait).Msg("change stream no disponible")
			if !sleepCtx(ctx, wait) {
				return
			}
			wait = nextBackoff(wait)
			continue
		}
		wait = watchBackoffMin
		if resync {
			s.resync(ctx, collection, fn, filters)
			resync = false
		}
		token, err = s.consume(ctx, stream, collection, fn, filters)
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("collection", collection).Msg("change stream interrumpido, reabriendo")
		resync = token == nil
		if !sleepCtx(ctx, watchBackoffMin) {
			return
		}
	}
}

// consume entrega los eventos del stream hasta que termina; devuelve el último resume token.
func (s *DocumentStore) consume(ctx context.Context, stream *mongo.ChangeStream, collection string, fn func(repository.Change), filters []repository.Filter) (bson.Raw, error) {
	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			s.log.Warn().Err(err).Str("collection", collection).Msg("evento de cambio ilegible")
			continue
		}
		ch := repository.Change{Collection: collection, ID: ev.DocumentKey.ID, At: time.Now()}
		if ev.OperationType == "delete" || ev.FullDocument == nil {
			ch.Type = repository.ChangeDelete
			fn(ch)
			continue
		}
		doc := normalizeDocument(ev.FullDocument)
		if !repository.Matches(doc, filters) {
			continue
		}
		ch.Type = repository.ChangeUpsert
		ch.Doc = doc
		fn(ch)
	}
	return stream.ResumeToken(), stream.Err()
}

// resync entrega el estado actual de la colección como upserts.
func (s *DocumentStore) resync(ctx context.Context, collection string, fn func(repository.Change), filters []repository.Filter) {
	docs, err := s.Query(ctx, collection, filters...)
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("no se pudo releer la colección")
		return
	}
	now := time.Now()
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		fn(repository.Change{Type: repository.ChangeUpsert, Collection: collection, ID: id, Doc: doc, At: now})
	}
}

// nextBackoff duplica d hasta watchBackoffMax.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > watchBackoffMax {
		return watchBackoffMax
	}
	return d
}

// sleepCtx espera d; false si ctx se cancela antes.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sessionTx operaciones de documento dentro de la transacción de sesión; el ctx recibido
// es el mongo.SessionContext que entrega WithTransaction.
type sessionTx struct {
	db *mongo.Database
}

func (t *sessionTx) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	return findOne(ctx, t.db.Collection(collection), id)
}

func (t *sessionTx) Query(ctx context.Context, collection string, filters ...repository.Filter) ([]repository.Document, error) {
	return find(ctx, t.db.Collection(collection), filters)
}

func (t *sessionTx) Set(ctx context.Context, collection, id string, doc repository.Document) error {
	_, err := t.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, toBSON(id, doc), options.Replace().SetUpsert(true))
	return err
}

func (t *sessionTx) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	return updateOne(ctx, t.db.Collection(collection), collection, id, partial)
}

func (t *sessionTx) Delete(ctx context.Context, collection, id string) error {
	_, err := t.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func findOne(ctx context.Context, col *mongo.Collection, id string) (repository.Document, error) {
	var raw bson.M
	err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return normalizeDocument(raw), nil
}

func find(ctx context.Context, col *mongo.Collection, filters []repository.Filter) ([]repository.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := col.Find(ctx, toFilter(filters), opts)
	if err != nil {
		return nil, err
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, err
	}
	docs := make([]repository.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, normalizeDocument(raw))
	}
	return docs, nil
}

func updateOne(ctx context.Context, col *mongo.Collection, collection, id string, partial repository.Document) error {
	set := bson.M{}
	for k, v := range partial {
		if k == "_id" || k == "id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		n, err := col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
		}
		return nil
	}
	res, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
	}
	return nil
}
