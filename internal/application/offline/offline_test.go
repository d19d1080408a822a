package offline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memstore"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	counters      = "counters"
	kindIncrement = "test.increment"
)

type incrementPayload struct {
	ID string `json:"id"`
	By int    `json:"by"`
}

type harness struct {
	store    *memstore.Store
	kv       *memstore.KV
	cache    *offline.Cache
	queue    *offline.Queue
	registry *offline.Registry
	executor *offline.Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Nop()
	h := &harness{store: memstore.New(), kv: memstore.NewKV(), registry: offline.NewRegistry()}
	h.cache = offline.NewCache(h.kv, log)
	h.queue = offline.NewQueue(h.kv, log)
	h.registry.Register(kindIncrement, incrementHandler)
	offline.RegisterDocumentHandlers(h.registry)
	h.executor = offline.NewExecutor(h.store, h.cache, h.queue, h.registry, time.Second, log)
	return h
}

// incrementHandler suma By al contador; falla con stock insuficiente si queda negativo.
func incrementHandler(raw json.RawMessage) (repository.TxFunc, error) {
	p, err := offline.Decode[incrementPayload](raw)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.Get(ctx, counters, p.ID)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("contador %s: %w", p.ID, domain.ErrNotFound)
		}
		next := asInt(doc["value"]) + p.By
		if next < 0 {
			return domain.ErrInsufficientStock
		}
		return tx.Update(ctx, counters, p.ID, repository.Document{"value": next})
	}, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func increment(t *testing.T, id string, by int) entity.PendingOperation {
	t.Helper()
	op, err := offline.NewOperation(kindIncrement, incrementPayload{ID: id, By: by}, entity.EntityKey(counters, id))
	require.NoError(t, err)
	return op
}

func (h *harness) seed(ctx context.Context, id string, value int) {
	doc := repository.Document{"value": value}
	h.store.Seed(counters, id, doc)
	h.cache.Put(ctx, counters, id, doc)
}

func (h *harness) remoteValue(t *testing.T, id string) int {
	t.Helper()
	doc, err := h.store.Get(context.Background(), counters, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return asInt(doc["value"])
}

func (h *harness) queueLen(t *testing.T) int {
	t.Helper()
	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	return n
}

// ──────────────────────────────────────────────────────────────────────────────
// Executor
// ──────────────────────────────────────────────────────────────────────────────

func TestExecutor_EnLineaConfirmaYRefrescaCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)

	op := increment(t, "c1", 3)
	out, err := h.executor.Execute(ctx, op)
	require.NoError(t, err)

	assert.True(t, out.Synced)
	assert.Equal(t, offline.WarningNone, out.Warning)
	assert.Equal(t, op.ID, out.OperationID)
	assert.Equal(t, 8, h.remoteValue(t, "c1"))
	assert.Equal(t, 8, asInt(h.cache.Get(counters, "c1")["value"]))
	assert.Equal(t, 0, h.queueLen(t))

	marker, err := h.store.Get(ctx, entity.CollectionAppliedOperations, op.ID)
	require.NoError(t, err)
	assert.NotNil(t, marker, "la operación confirmada deja marca de idempotencia")
}

func TestExecutor_SinConexionEncolaYAplicaEnCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)

	out, err := h.executor.Execute(ctx, increment(t, "c1", -2))
	require.NoError(t, err, "el fallo de infraestructura no llega al caller")

	assert.False(t, out.Synced)
	assert.Equal(t, offline.WarningOffline, out.Warning)
	assert.Equal(t, offline.AdvisoryOffline, out.Advisory)
	assert.Equal(t, 3, asInt(h.cache.Get(counters, "c1")["value"]), "aplicación optimista en la caché")
	assert.Equal(t, 1, h.queueLen(t))

	h.store.SetOffline(nil)
	assert.Equal(t, 5, h.remoteValue(t, "c1"), "el remoto no cambia hasta sincronizar")
}

func TestExecutor_CuotaAgotadaDevuelveAvisoDeCuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrQuotaExceeded)

	out, err := h.executor.Execute(ctx, increment(t, "c1", 1))
	require.NoError(t, err)
	assert.False(t, out.Synced)
	assert.Equal(t, offline.WarningQuota, out.Warning)
	assert.Equal(t, offline.AdvisoryQuota, out.Advisory)
	assert.Equal(t, 1, h.queueLen(t))
}

func TestExecutor_ErrorDeNegocioNoEncola(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 1)

	_, err := h.executor.Execute(ctx, increment(t, "c1", -5))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, h.remoteValue(t, "c1"))
	assert.Equal(t, 0, h.queueLen(t))
}

func TestExecutor_ErrorDeNegocioSinConexionTampocoEncola(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 1)
	h.store.SetOffline(domain.ErrRemoteUnavailable)

	_, err := h.executor.Execute(ctx, increment(t, "c1", -5))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock, "la caché valida las mismas reglas")
	assert.Equal(t, 1, asInt(h.cache.Get(counters, "c1")["value"]))
	assert.Equal(t, 0, h.queueLen(t))

	_, err = h.executor.Execute(ctx, increment(t, "desconocido", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, h.queueLen(t))
}

func TestExecutor_TipoDesconocidoEsEntradaInvalida(t *testing.T) {
	h := newHarness(t)
	op, err := offline.NewOperation("no.existe", struct{}{})
	require.NoError(t, err)
	_, err = h.executor.Execute(context.Background(), op)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExecutor_TimeoutRemotoSeTrataComoSinConexion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.executor = offline.NewExecutor(h.store, h.cache, h.queue, h.registry, 20*time.Millisecond, logger.Nop())
	h.store.SetLatency(200 * time.Millisecond)

	out, err := h.executor.Execute(ctx, increment(t, "c1", 1))
	require.NoError(t, err)
	assert.False(t, out.Synced)
	assert.Equal(t, offline.WarningOffline, out.Warning)
}

func TestExecutor_ReplayEsIdempotente(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)

	op := increment(t, "c1", 2)
	_, err := h.executor.Execute(ctx, op)
	require.NoError(t, err)
	require.NoError(t, h.executor.Replay(ctx, op))
	require.NoError(t, h.executor.Replay(ctx, op))

	assert.Equal(t, 7, h.remoteValue(t, "c1"), "la misma operación se aplica una sola vez")
}

func TestExecutor_EnLineaReproducePendientesDeLaMismaEntidad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 0)
	h.seed(ctx, "c2", 0)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	queued := increment(t, "c1", 50)
	_, err := h.executor.Execute(ctx, queued)
	require.NoError(t, err)
	_, err = h.executor.Execute(ctx, increment(t, "c2", 1))
	require.NoError(t, err)

	// Al volver la conexión, la salida sobre c1 va detrás de la entrada encolada.
	h.store.SetOffline(nil)
	out, err := h.executor.Execute(ctx, increment(t, "c1", -30))
	require.NoError(t, err, "la entrada pendiente se aplica antes que la salida")
	assert.True(t, out.Synced)
	assert.Equal(t, 20, h.remoteValue(t, "c1"))
	assert.Equal(t, 0, h.remoteValue(t, "c2"), "otras entidades esperan al sincronizador")

	ops, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.NotEqual(t, queued.ID, ops[0].ID)

	marker, err := h.store.Get(ctx, entity.CollectionAppliedOperations, queued.ID)
	require.NoError(t, err)
	assert.NotNil(t, marker)
}

func TestExecutor_PendienteQueFallaEncolaLaNuevaDetras(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 0)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	queued := increment(t, "c1", 50)
	_, err := h.executor.Execute(ctx, queued)
	require.NoError(t, err)

	// El remoto responde pero c1 sigue sin poder escribirse.
	h.store.SetOffline(nil)
	h.store.FailWritesTo(counters, "c1", domain.ErrRemoteUnavailable)
	later := increment(t, "c1", -30)
	out, err := h.executor.Execute(ctx, later)
	require.NoError(t, err)
	assert.False(t, out.Synced)
	assert.Equal(t, offline.WarningOffline, out.Warning)
	assert.Equal(t, 20, asInt(h.cache.Get(counters, "c1")["value"]))
	assert.Equal(t, 0, h.remoteValue(t, "c1"))

	ops, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, queued.ID, ops[0].ID, "el orden de creación se conserva")
	assert.Equal(t, later.ID, ops[1].ID)
}

func TestExecutor_PendienteRechazadoSeDescartaYSigue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	_, err := h.executor.Execute(ctx, increment(t, "c1", -5))
	require.NoError(t, err)

	// Otro dispositivo dejó el remoto en 1: la salida encolada ya no cabe.
	h.store.SetOffline(nil)
	h.store.Seed(counters, "c1", repository.Document{"value": 1})

	out, err := h.executor.Execute(ctx, increment(t, "c1", 2))
	require.NoError(t, err)
	assert.True(t, out.Synced)
	assert.Equal(t, 3, h.remoteValue(t, "c1"))
	assert.Equal(t, 0, h.queueLen(t))
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newScheduler(h *harness, maxAttempts int) (*offline.Scheduler, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := offline.NewScheduler(h.executor, h.queue, offline.SchedulerConfig{
		Interval:    time.Hour,
		MaxAttempts: maxAttempts,
		BackoffMax:  time.Minute,
		Clock:       clock.Now,
	}, logger.Nop())
	return s, clock
}

func TestScheduler_DrenaLaColaAlVolverLaConexion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)

	_, err := h.executor.Execute(ctx, increment(t, "c1", 2))
	require.NoError(t, err)
	_, err = h.executor.Execute(ctx, increment(t, "c1", -4))
	require.NoError(t, err)
	require.Equal(t, 2, h.queueLen(t))

	h.store.SetOffline(nil)
	s, _ := newScheduler(h, 5)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 3, h.remoteValue(t, "c1"))
	assert.Equal(t, 0, h.queueLen(t))

	last, err := s.LastReport()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Succeeded)
}

func TestScheduler_StockInsuficienteAlReproducirSeDescarta(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)

	_, err := h.executor.Execute(ctx, increment(t, "c1", -3))
	require.NoError(t, err, "en la caché hay stock suficiente")

	// Otro dispositivo consumió stock mientras tanto.
	h.store.SetOffline(nil)
	h.store.Seed(counters, "c1", repository.Document{"value": 1})

	s, _ := newScheduler(h, 5)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 1, h.remoteValue(t, "c1"), "la operación descartada no tiene efecto")
}

func TestScheduler_FalloDeInfraestructuraReintentaConBackoff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	_, err := h.executor.Execute(ctx, increment(t, "c1", 1))
	require.NoError(t, err)

	s, clock := newScheduler(h, 5)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Remaining)

	ops, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.NotEmpty(t, ops[0].LastError)
	require.NotNil(t, ops[0].NextAttemptAt)
	assert.True(t, ops[0].NextAttemptAt.After(clock.Now()))

	// Antes de vencer el backoff no se intenta.
	h.store.SetOffline(nil)
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, 1, report.Deferred)

	clock.Advance(time.Minute)
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 6, h.remoteValue(t, "c1"))
}

func TestScheduler_AgotarIntentosMueveADescartes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	_, err := h.executor.Execute(ctx, increment(t, "c1", 1))
	require.NoError(t, err)

	s, _ := newScheduler(h, 1)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLetters)
	assert.Equal(t, 0, h.queueLen(t))

	dead, err := h.queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	n, err := h.queue.RequeueDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ops, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 0, ops[0].Attempts)
}

func TestScheduler_RespetaOrdenPorEntidad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.seed(ctx, "c2", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	for _, op := range []entity.PendingOperation{increment(t, "c1", 1), increment(t, "c1", 1), increment(t, "c2", 1)} {
		_, err := h.executor.Execute(ctx, op)
		require.NoError(t, err)
	}

	// c1 falla al escribir; c2 es independiente.
	h.store.SetOffline(nil)
	h.store.FailWritesTo(counters, "c1", domain.ErrRemoteUnavailable)

	s, _ := newScheduler(h, 5)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Deferred, "la segunda operación de c1 espera a la primera")
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 5, h.remoteValue(t, "c1"))
	assert.Equal(t, 6, h.remoteValue(t, "c2"))
}

func TestScheduler_StartYStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(ctx, "c1", 5)
	h.store.SetOffline(domain.ErrRemoteUnavailable)
	_, err := h.executor.Execute(ctx, increment(t, "c1", 1))
	require.NoError(t, err)
	h.store.SetOffline(nil)

	s, _ := newScheduler(h, 5)
	s.Start(ctx)
	require.Eventually(t, func() bool {
		n, err := h.queue.Len(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond,
		"Start ejecuta una pasada inmediata")
	s.Stop()
	s.Stop()
	assert.Equal(t, 6, h.remoteValue(t, "c1"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Cache y Queue
// ──────────────────────────────────────────────────────────────────────────────

func TestCache_TransaccionTodoONada(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cache.Put(ctx, counters, "c1", repository.Document{"value": 1})

	_, err := h.cache.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Update(ctx, counters, "c1", repository.Document{"value": 100}); err != nil {
			return err
		}
		return domain.ErrConflict
	}, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, asInt(h.cache.Get(counters, "c1")["value"]))
}

func TestCache_SobreviveReinicio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cache.Put(ctx, counters, "c1", repository.Document{"value": 9})

	restarted := offline.NewCache(h.kv, logger.Nop())
	require.NoError(t, restarted.Load(ctx, counters))
	assert.Equal(t, 9, asInt(restarted.Get(counters, "c1")["value"]))
}

func TestCache_FollowReflejaCambiosRemotos(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)

	stop, err := h.cache.Follow(ctx, h.store, counters)
	require.NoError(t, err)
	defer stop()

	id, err := h.store.Create(ctx, counters, repository.Document{"value": 4})
	require.NoError(t, err)
	assert.Equal(t, 4, asInt(h.cache.Get(counters, id)["value"]))

	require.NoError(t, h.store.Delete(ctx, counters, id))
	assert.Nil(t, h.cache.Get(counters, id))
}

func TestQueue_SobreviveReinicio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := increment(t, "c1", 1)
	second := increment(t, "c1", 2)
	require.NoError(t, h.queue.Enqueue(ctx, first))
	require.NoError(t, h.queue.Enqueue(ctx, second))
	require.NoError(t, h.queue.Enqueue(ctx, first), "reencolar el mismo id no duplica")

	restarted := offline.NewQueue(h.kv, logger.Nop())
	ops, err := restarted.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, first.ID, ops[0].ID, "orden FIFO")
	assert.Equal(t, second.ID, ops[1].ID)
}

func TestQueue_SettleConservaOperacionesNuevas(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	done := increment(t, "c1", 1)
	require.NoError(t, h.queue.Enqueue(ctx, done))
	_, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)

	late := increment(t, "c1", 2)
	require.NoError(t, h.queue.Enqueue(ctx, late))
	require.NoError(t, h.queue.Settle(ctx, []string{done.ID}, nil, nil))

	ops, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, late.ID, ops[0].ID)
}

func TestQueue_FalloAlPersistirNoEncola(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.queue.Enqueue(ctx, increment(t, "c1", 1)))
	h.kv.SetError(fmt.Errorf("disco lleno"))

	assert.Error(t, h.queue.Enqueue(ctx, increment(t, "c1", 1)))
	h.kv.SetError(nil)
	assert.Equal(t, 1, h.queueLen(t))
}

func TestQueue_AheadIncluyeDependenciasTransitivas(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	mk := func(keys ...string) entity.PendingOperation {
		op, err := offline.NewOperation(kindIncrement, incrementPayload{ID: "x", By: 1}, keys...)
		require.NoError(t, err)
		require.NoError(t, h.queue.Enqueue(ctx, op))
		return op
	}
	onB := mk("b")
	onC := mk("c")
	onAB := mk("a", "b")
	mk("d")

	ahead, err := h.queue.Ahead(ctx, []string{"a"})
	require.NoError(t, err)
	require.Len(t, ahead, 2)
	assert.Equal(t, onB.ID, ahead[0].ID, "b precede a la operación sobre a y b")
	assert.Equal(t, onAB.ID, ahead[1].ID)

	ahead, err = h.queue.Ahead(ctx, []string{"c"})
	require.NoError(t, err)
	require.Len(t, ahead, 1)
	assert.Equal(t, onC.ID, ahead[0].ID)

	ahead, err = h.queue.Ahead(ctx, []string{"z"})
	require.NoError(t, err)
	assert.Empty(t, ahead)
}

func TestQueue_SettleFallidoNoCambiaLaCola(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := increment(t, "c1", 1)
	second := increment(t, "c1", 2)
	require.NoError(t, h.queue.Enqueue(ctx, first))
	require.NoError(t, h.queue.Enqueue(ctx, second))

	h.kv.SetError(fmt.Errorf("disco lleno"))
	err := h.queue.Settle(ctx, []string{first.ID}, nil, []entity.PendingOperation{second})
	require.Error(t, err)
	h.kv.SetError(nil)

	assert.Equal(t, 2, h.queueLen(t), "la memoria no se adelanta al disco")
	dead, err := h.queue.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)

	restarted := offline.NewQueue(h.kv, logger.Nop())
	ops, err := restarted.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestQueue_RequeueFallidoConservaDescartes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	op := increment(t, "c1", 1)
	require.NoError(t, h.queue.Enqueue(ctx, op))
	require.NoError(t, h.queue.Settle(ctx, nil, nil, []entity.PendingOperation{op}))
	require.Equal(t, 0, h.queueLen(t))

	h.kv.SetError(fmt.Errorf("disco lleno"))
	_, err := h.queue.RequeueDeadLetters(ctx)
	require.Error(t, err)
	h.kv.SetError(nil)

	dead, err := h.queue.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Len(t, dead, 1, "los descartes siguen disponibles para reintentar")
	assert.Equal(t, 0, h.queueLen(t))

	n, err := h.queue.RequeueDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.queueLen(t))
}
