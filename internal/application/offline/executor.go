package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Warning aviso para el usuario cuando la escritura quedó solo en local.
type Warning string

const (
	WarningNone    Warning = ""
	WarningOffline Warning = "OFFLINE"
	WarningQuota   Warning = "QUOTA_EXCEEDED"
)

// Mensajes mostrados al usuario.
const (
	AdvisoryOffline = "Datos guardados localmente, se sincronizarán automáticamente"
	AdvisoryQuota   = "Cuota del servidor agotada: datos guardados localmente, se sincronizarán automáticamente"
)

// DefaultWriteTimeout límite de una escritura transaccional remota.
const DefaultWriteTimeout = 15 * time.Second

// Outcome resultado de una escritura: confirmada en remoto o encolada en local.
type Outcome struct {
	OperationID string
	Synced      bool
	Warning     Warning
	Advisory    string
}

// Executor implementa el camino de escritura común: transacción remota; si falla la
// infraestructura, aplicación optimista en la caché + operación pendiente en la cola.
type Executor struct {
	store    repository.RemoteStore
	cache    *Cache
	queue    *Queue
	registry *Registry
	timeout  time.Duration
	log      *logger.Logger

	// replayMu serializa las reproducciones de la cola entre el sincronizador y Execute.
	replayMu sync.Mutex
}

// NewExecutor construye el executor. timeout <= 0 usa DefaultWriteTimeout.
func NewExecutor(store repository.RemoteStore, cache *Cache, queue *Queue, registry *Registry, timeout time.Duration, log *logger.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Executor{
		store:    store,
		cache:    cache,
		queue:    queue,
		registry: registry,
		timeout:  timeout,
		log:      log.Component("write-through"),
	}
}

// Execute aplica op. Los errores de negocio se devuelven sin encolar nada; los de
// infraestructura se absorben y el Outcome indica Synced=false con su aviso.
//
// Si la cola tiene operaciones pendientes sobre alguna de las entidades de op, se reproducen
// antes en orden de creación; si alguna no puede sincronizarse, op se encola detrás de ellas.
func (e *Executor) Execute(ctx context.Context, op entity.PendingOperation) (Outcome, error) {
	fn, err := e.registry.Build(op)
	if err != nil {
		return Outcome{}, err
	}
	err = e.drainAhead(ctx, op)
	if err == nil {
		err = e.applyRemote(ctx, op, fn)
	}
	if err == nil {
		return Outcome{OperationID: op.ID, Synced: true}, nil
	}
	if domain.IsBusiness(err) {
		return Outcome{}, err
	}

	warning, advisory := WarningOffline, AdvisoryOffline
	if errors.Is(err, domain.ErrQuotaExceeded) {
		warning, advisory = WarningQuota, AdvisoryQuota
	}
	e.log.Warn().Err(err).Str("op_id", op.ID).Str("kind", op.Kind).Str("advisory", advisory).
		Msg("escritura remota fallida, se guarda en local")

	// La caché valida las mismas reglas de negocio con el último estado conocido.
	_, err = e.cache.RunTransaction(ctx, fn, func() error {
		return e.queue.Enqueue(ctx, op)
	})
	if err != nil {
		if domain.IsBusiness(err) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("guardar operación en local: %w", err)
	}
	return Outcome{OperationID: op.ID, Synced: false, Warning: warning, Advisory: advisory}, nil
}

// drainAhead reproduce las operaciones encoladas que preceden a op sobre sus entidades.
// Devuelve el primer error de infraestructura; las que fallan por negocio se descartan igual
// que en el sincronizador. Un error devuelto nunca es de negocio.
func (e *Executor) drainAhead(ctx context.Context, op entity.PendingOperation) error {
	ahead, err := e.queue.Ahead(ctx, op.EntityKeys)
	if err != nil {
		return fmt.Errorf("%w: leer cola local: %v", domain.ErrRemoteUnavailable, err)
	}
	if len(ahead) == 0 {
		return nil
	}
	var (
		done   []string
		failed error
	)
	for _, prev := range ahead {
		err := e.Replay(ctx, prev)
		if err == nil {
			done = append(done, prev.ID)
			continue
		}
		if domain.IsBusiness(err) {
			done = append(done, prev.ID)
			e.log.Error().Err(err).Str("op_id", prev.ID).Str("kind", prev.Kind).
				Msg("operación descartada al sincronizar")
			continue
		}
		failed = err
		break
	}
	if len(done) > 0 {
		if err := e.queue.Settle(ctx, done, nil, nil); err != nil {
			// Quedan en la cola ya aplicadas; la marca de idempotencia evita duplicarlas.
			e.log.Warn().Err(err).Msg("no se pudo actualizar la cola local")
		}
		e.log.Info().Int("replayed", len(done)).Str("op_id", op.ID).
			Msg("operaciones pendientes sincronizadas antes de la escritura")
	}
	return failed
}

// Replay aplica en remoto una operación de la cola. Idempotente por op.ID.
func (e *Executor) Replay(ctx context.Context, op entity.PendingOperation) error {
	fn, err := e.registry.Build(op)
	if err != nil {
		return err
	}
	e.replayMu.Lock()
	defer e.replayMu.Unlock()
	return e.applyRemote(ctx, op, fn)
}

// applyRemote ejecuta fn en una transacción remota acotada por timeout junto con la marca
// de idempotencia de op; si la marca ya existe la operación se considera aplicada.
// Tras el commit refleja en la caché lo escrito.
func (e *Executor) applyRemote(ctx context.Context, op entity.PendingOperation, fn repository.TxFunc) error {
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var writes []repository.Write
	err := e.store.RunTransaction(tctx, func(ctx context.Context, tx repository.Tx) error {
		writes = nil // algunos drivers reintentan la función
		marker, err := tx.Get(ctx, entity.CollectionAppliedOperations, op.ID)
		if err != nil {
			return err
		}
		if marker != nil {
			return nil
		}
		rec := newRecordingTx(tx)
		if err := fn(ctx, rec); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity.CollectionAppliedOperations, op.ID, repository.Document{
			"kind":      op.Kind,
			"createdAt": op.CreatedAt,
			"appliedAt": time.Now().UTC(),
		}); err != nil {
			return err
		}
		writes = rec.Writes()
		return nil
	})
	if err != nil {
		if tctx.Err() != nil && !domain.IsBusiness(err) && !errors.Is(err, domain.ErrRemoteUnavailable) {
			return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
		}
		return err
	}
	e.cache.Apply(ctx, writes)
	return nil
}

// recordingTx registra el estado final de cada documento escrito para reflejarlo en la caché.
type recordingTx struct {
	repository.Tx
	index  map[string]int
	writes []repository.Write
}

func newRecordingTx(tx repository.Tx) *recordingTx {
	return &recordingTx{Tx: tx, index: make(map[string]int)}
}

func (r *recordingTx) record(collection, id string, doc repository.Document) {
	key := collection + "/" + id
	w := repository.Write{Collection: collection, ID: id, Doc: doc}
	if i, ok := r.index[key]; ok {
		r.writes[i] = w
		return
	}
	r.index[key] = len(r.writes)
	r.writes = append(r.writes, w)
}

func (r *recordingTx) Set(ctx context.Context, collection, id string, doc repository.Document) error {
	if err := r.Tx.Set(ctx, collection, id, doc); err != nil {
		return err
	}
	c := doc.Clone()
	if c == nil {
		c = repository.Document{}
	}
	c["id"] = id
	r.record(collection, id, c)
	return nil
}

func (r *recordingTx) Update(ctx context.Context, collection, id string, partial repository.Document) error {
	if err := r.Tx.Update(ctx, collection, id, partial); err != nil {
		return err
	}
	doc, err := r.Tx.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	r.record(collection, id, doc)
	return nil
}

func (r *recordingTx) Delete(ctx context.Context, collection, id string) error {
	if err := r.Tx.Delete(ctx, collection, id); err != nil {
		return err
	}
	r.record(collection, id, nil)
	return nil
}

func (r *recordingTx) Writes() []repository.Write {
	return r.writes
}
