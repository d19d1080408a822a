package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

var (
	_ repository.RemoteStore = (*DocumentStore)(nil)
	_ repository.Aggregator  = (*DocumentStore)(nil)
)

// notifyChannel canal LISTEN/NOTIFY por el que el trigger publica los cambios.
const notifyChannel = "document_changes"

// Espera entre intentos de reabrir la conexión LISTEN.
const (
	listenBackoffMin = 500 * time.Millisecond
	listenBackoffMax = 30 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);

CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
DECLARE
	rec RECORD;
BEGIN
	IF TG_OP = 'DELETE' THEN rec := OLD; ELSE rec := NEW; END IF;
	PERFORM pg_notify('document_changes', json_build_object(
		'op', TG_OP, 'collection', rec.collection, 'id', rec.id)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// Querier interfaz común de *pgxpool.Pool y pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentStore implementa repository.RemoteStore sobre una tabla JSONB (collection, id, data).
// El esquema se crea en el primer uso con conexión, así el proceso puede arrancar sin red.
type DocumentStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	schemaMu    sync.Mutex
	schemaReady atomic.Bool
}

// NewDocumentStore construye el store con el pool.
func NewDocumentStore(pool *pgxpool.Pool, log *logger.Logger) *DocumentStore {
	return &DocumentStore{pool: pool, log: log.Component("postgres")}
}

// EnsureSchema crea la tabla, el índice GIN y el trigger de notificación si no existen.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady.Load() {
		return nil
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", mapError(err))
	}
	s.schemaReady.Store(true)
	return nil
}

func (s *DocumentStore) ready(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}
	return s.EnsureSchema(ctx)
}

// Get obtiene un documento; (nil, nil) si no existe.
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	doc, err := getDocument(ctx, s.pool, collection, id, false)
	return doc, mapError(err)
}

// Query lista documentos que contienen todos los filtros, ordenados por id.
func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...repository.Filter) ([]repository.Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	docs, err := queryDocuments(ctx, s.pool, collection, filters, false)
	return docs, mapError(err)
}

// Create inserta un documento con id generado.
func (s *DocumentStore) Create(ctx context.Context, collection string, doc repository.Document) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	id := uuid.New().String()
	data := doc.Clone()
	if data == nil {
		data = repository.Document{}
	}
	data["id"] = id
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, raw)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s/%s ya existe", domain.ErrConflict, collection, id)
		}
		return "", mapError(err)
	}
	return id, nil
}

// Update fusiona campos de primer nivel; domain.ErrNotFound si el documento no existe.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return mapError(updateDocument(ctx, s.pool, collection, id, partial))
}

// Delete elimina un documento (no falla si no existe).
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return mapError(deleteDocument(ctx, s.pool, collection, id))
}

// RunTransaction inicia una transacción, ejecuta fn con un Tx atado a ella y hace Commit o Rollback.
// Las lecturas dentro de fn bloquean las filas leídas (SELECT ... FOR UPDATE).
func (s *DocumentStore) RunTransaction(ctx context.Context, fn repository.TxFunc) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// SumProduct suma a*b (campos numéricos de primer nivel) sobre los documentos de la
// colección que cumplen los filtros. La aritmética es NUMERIC en el servidor.
func (s *DocumentStore) SumProduct(ctx context.Context, collection, a, b string, filters ...repository.Filter) (decimal.Decimal, error) {
	if err := s.ready(ctx); err != nil {
		return decimal.Zero, err
	}
	contains, err := containment(filters)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM((data->>($3::text))::numeric * (data->>($4::text))::numeric), 0)
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb AND data ? $3::text AND data ? $4::text`,
		collection, contains, a, b).Scan(&total)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	return total, nil
}

// Subscribe escucha el canal de notificaciones con una conexión dedicada fuera del pool.
// Cada notificación de la colección se resuelve leyendo el documento actual.
// Si la conexión no se puede abrir o se cae, se reintenta con backoff hasta que se invoque
// stop; al recuperarla se vuelve a leer la colección para cubrir lo perdido.
func (s *DocumentStore) Subscribe(ctx context.Context, collection string, fn func(repository.Change), filters ...repository.Filter) (func(), error) {
	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.listen(lctx, collection, fn, filters)
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

func (s *DocumentStore) listen(ctx context.Context, collection string, fn func(repository.Change), filters []repository.Filter) {
	wait := listenBackoffMin
	resync := false
	for ctx.Err() == nil {
		conn, err := s.dialListener(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Str("collection", collection).Dur("retry_in", wait).Msg("suscripción no disponible")
			if !sleepCtx(ctx, wait) {
				return
			}
			wait = nextBackoff(wait)
			resync = true
			continue
		}
		wait = listenBackoffMin
		if resync {
			s.resync(ctx, collection, fn, filters)
		}
		err = s.consume(ctx, conn, collection, fn, filters)
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("collection", collection).Msg("suscripción interrumpida, reconectando")
		resync = true
		if !sleepCtx(ctx, listenBackoffMin) {
			return
		}
	}
}

// dialListener saca una conexión del pool y deja LISTEN activo en ella; el llamador la cierra.
func (s *DocumentStore) dialListener(ctx context.Context) (*pgx.Conn, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	conn := pooled.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, mapError(err)
	}
	return conn, nil
}

func (s *DocumentStore) consume(ctx context.Context, conn *pgx.Conn, collection string, fn func(repository.Change), filters []repository.Filter) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return mapError(err)
		}
		if ch, ok := s.resolve(ctx, n.Payload, collection, filters); ok {
			fn(ch)
		}
	}
}

// resync entrega el estado actual de la colección como upserts. Los borrados ocurridos
// mientras no había conexión no se detectan.
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
	s.log.Info().Str("collection", collection).Int("documents", len(docs)).Msg("suscripción restablecida")
}

type notification struct {
	Op         string `json:"op"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func (s *DocumentStore) resolve(ctx context.Context, payload, collection string, filters []repository.Filter) (repository.Change, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil || n.Collection != collection {
		return repository.Change{}, false
	}
	now := time.Now()
	if n.Op == "DELETE" {
		return repository.Change{Type: repository.ChangeDelete, Collection: n.Collection, ID: n.ID, At: now}, true
	}
	doc, err := s.Get(ctx, n.Collection, n.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("collection", n.Collection).Str("id", n.ID).Msg("no se pudo leer el documento notificado")
		return repository.Change{}, false
	}
	if doc == nil {
		// Borrado entre la notificación y la lectura.
		return repository.Change{Type: repository.ChangeDelete, Collection: n.Collection, ID: n.ID, At: now}, true
	}
	if !repository.Matches(doc, filters) {
		return repository.Change{}, false
	}
	return repository.Change{Type: repository.ChangeUpsert, Collection: n.Collection, ID: n.ID, Doc: doc, At: now}, true
}

func getDocument(ctx context.Context, q Querier, collection, id string, lock bool) (repository.Document, error) {
	sql := `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var raw []byte
	err := q.QueryRow(ctx, sql, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func queryDocuments(ctx context.Context, q Querier, collection string, filters []repository.Filter, lock bool) ([]repository.Document, error) {
	contains, err := containment(filters)
	if err != nil {
		return nil, err
	}
	sql := `SELECT data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, collection, contains)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []repository.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func updateDocument(ctx context.Context, q Querier, collection, id string, partial repository.Document) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	tag, err := q.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
	}
	return nil
}

func deleteDocument(ctx context.Context, q Querier, collection, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

// containment arma el objeto JSON usado con @>; sin filtros es {} y coincide con todo.
func containment(filters []repository.Filter) ([]byte, error) {
	obj := make(map[string]any, len(filters))
	for _, f := range filters {
		obj[f.Field] = f.Value
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: filtro no serializable: %v", domain.ErrInvalidInput, err)
	}
	return raw, nil
}

func decode(raw []byte) (repository.Document, error) {
	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decodificar documento: %w", err)
	}
	return doc, nil
}
