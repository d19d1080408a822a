package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
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

const testUser = "user-1"

type env struct {
	store      *memstore.Store
	cache      *offline.Cache
	queue      *offline.Queue
	executor   *offline.Executor
	scheduler  *offline.Scheduler
	ledger     *inventory.Ledger
	reconciler *inventory.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.Nop()
	e := &env{store: memstore.New()}
	kv := memstore.NewKV()
	e.cache = offline.NewCache(kv, log)
	e.queue = offline.NewQueue(kv, log)
	registry := offline.NewRegistry()
	offline.RegisterDocumentHandlers(registry)
	inventory.RegisterHandlers(registry)
	e.executor = offline.NewExecutor(e.store, e.cache, e.queue, registry, time.Second, log)
	e.scheduler = offline.NewScheduler(e.executor, e.queue, offline.SchedulerConfig{Interval: time.Hour, MaxAttempts: 5}, log)

	movements := offline.NewRepository(repository.Movements, e.store, e.cache, e.executor, log)
	inventories := offline.NewRepository(repository.Inventories, e.store, e.cache, e.executor, log)
	items := offline.NewRepository(repository.InventoryItems, e.store, e.cache, e.executor, log)
	e.ledger = inventory.NewLedger(e.executor, e.cache, movements, log)
	e.reconciler = inventory.NewReconciler(e.executor, e.cache, inventories, items, log)
	return e
}

// seedArticle crea el artículo en el remoto y en la caché.
func (e *env) seedArticle(t *testing.T, id, code string, stock, minStock int) {
	t.Helper()
	a := &entity.Article{
		ID:           id,
		Code:         code,
		Name:         "Artículo " + code,
		Unit:         "und",
		CurrentStock: stock,
		MinStock:     minStock,
		MaxStock:     500,
		Status:       entity.DeriveArticleStatus(stock, minStock),
		UnitCost:     decimal.NewFromInt(100),
	}
	doc, err := repository.Articles.Encode(a)
	require.NoError(t, err)
	e.store.Seed(entity.CollectionArticles, id, doc)
	e.cache.Put(context.Background(), entity.CollectionArticles, id, doc)
}

func (e *env) remoteArticle(t *testing.T, id string) *entity.Article {
	t.Helper()
	doc, err := e.store.Get(context.Background(), entity.CollectionArticles, id)
	require.NoError(t, err)
	a, err := repository.Articles.Decode(id, doc)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func (e *env) remoteMovement(t *testing.T, id string) *entity.Movement {
	t.Helper()
	doc, err := e.store.Get(context.Background(), entity.CollectionMovements, id)
	require.NoError(t, err)
	m, err := repository.Movements.Decode(id, doc)
	require.NoError(t, err)
	return m
}

// ──────────────────────────────────────────────────────────────────────────────
// Entradas y salidas
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordEntry_SumaStockYCreaUnMovimiento(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	cost := decimal.NewFromInt(200)

	r, err := e.ledger.RecordEntry(ctx, inventory.EntryInput{
		ArticleID: "a1", Quantity: 50, UserID: testUser, UnitCost: &cost, BatchNumber: "L-77", Location: "B2",
	})
	require.NoError(t, err)
	assert.True(t, r.Synced)
	assert.Equal(t, entity.MovementStatusValidated, r.Status)
	assert.Equal(t, 200, r.NewStock)
	assert.Equal(t, entity.ArticleStatusNormal, r.ArticleStatus)

	a := e.remoteArticle(t, "a1")
	assert.Equal(t, 200, a.CurrentStock)
	assert.Equal(t, "L-77", a.BatchNumber)
	assert.Equal(t, "B2", a.Location)
	assert.True(t, a.UnitCost.Equal(decimal.NewFromInt(125)), "costo promedio ponderado, obtenido %s", a.UnitCost)

	assert.Equal(t, 1, e.store.Count(entity.CollectionMovements))
	m := e.remoteMovement(t, r.MovementID)
	require.NotNil(t, m)
	assert.Equal(t, entity.MovementTypeEntry, m.Type)
	assert.Equal(t, 150, m.PreviousStock)
	assert.Equal(t, 200, m.NewStock)
	assert.Equal(t, "FB001", m.ArticleCode)
	assert.True(t, m.TotalCost.Equal(decimal.NewFromInt(10000)))
}

func TestRecordEntry_ControlDeCalidadFallidoQuedaPendiente(t *testing.T) {
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 10, 20)

	r, err := e.ledger.RecordEntry(context.Background(), inventory.EntryInput{
		ArticleID: "a1", Quantity: 5, UserID: testUser,
		QualityCheck: &entity.QualityCheck{Passed: false, Notes: "empaque roto"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementStatusPending, r.Status)
	assert.Equal(t, 15, e.remoteArticle(t, "a1").CurrentStock, "el stock cambia aunque quede pendiente")
	assert.Equal(t, entity.MovementStatusPending, e.remoteMovement(t, r.MovementID).Status)
}

func TestRecordEntry_ValidaEntrada(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 10, 20)

	_, err := e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "a1", Quantity: 0, UserID: testUser})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "a1", Quantity: -3, UserID: testUser})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "a1", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	neg := decimal.NewFromInt(-1)
	_, err = e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "a1", Quantity: 1, UserID: testUser, UnitCost: &neg})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "nada", Quantity: 1, UserID: testUser})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, e.store.Count(entity.CollectionMovements))
}

func TestRecordExit_StockInsuficienteNoTieneEfecto(t *testing.T) {
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)

	_, err := e.ledger.RecordExit(context.Background(), inventory.ExitInput{ArticleID: "a1", Quantity: 200, UserID: testUser})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 150, e.remoteArticle(t, "a1").CurrentStock)
	assert.Equal(t, 0, e.store.Count(entity.CollectionMovements))
	n, err := e.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordExit_DescuentaYDejaPendiente(t *testing.T) {
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)

	r, err := e.ledger.RecordExit(context.Background(), inventory.ExitInput{ArticleID: "a1", Quantity: 140, UserID: testUser, Destination: "Cocina"})
	require.NoError(t, err)
	assert.Equal(t, 10, r.NewStock)
	assert.Equal(t, entity.ArticleStatusLow, r.ArticleStatus)
	assert.Equal(t, entity.MovementStatusPending, r.Status)

	a := e.remoteArticle(t, "a1")
	assert.Equal(t, 10, a.CurrentStock)
	assert.Equal(t, entity.ArticleStatusLow, a.Status)
	m := e.remoteMovement(t, r.MovementID)
	assert.Equal(t, entity.MovementTypeExit, m.Type)
	assert.Equal(t, -140, m.Delta())
	assert.Equal(t, "Cocina", m.Destination)
}

func TestRecordExit_TodoElStockDejaEstadoOut(t *testing.T) {
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 7, 2)

	r, err := e.ledger.RecordExit(context.Background(), inventory.ExitInput{ArticleID: "a1", Quantity: 7, UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, 0, r.NewStock)
	assert.Equal(t, entity.ArticleStatusOut, e.remoteArticle(t, "a1").Status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Validación de movimientos
// ──────────────────────────────────────────────────────────────────────────────

func TestValidateMovement_SoloDesdePendiente(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	r, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 10, UserID: testUser})
	require.NoError(t, err)

	_, err = e.ledger.ValidateMovement(ctx, r.MovementID, "supervisor")
	require.NoError(t, err)
	m := e.remoteMovement(t, r.MovementID)
	assert.Equal(t, entity.MovementStatusValidated, m.Status)
	assert.Equal(t, "supervisor", m.ValidatedBy)
	assert.NotNil(t, m.ValidatedAt)
	assert.Equal(t, 140, e.remoteArticle(t, "a1").CurrentStock, "validar no toca el stock")

	_, err = e.ledger.RejectMovement(ctx, r.MovementID, "supervisor", "tarde")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = e.ledger.ValidateMovement(ctx, "no-existe", "supervisor")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectMovement_GuardaMotivo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	r, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 10, UserID: testUser})
	require.NoError(t, err)

	_, err = e.ledger.RejectMovement(ctx, r.MovementID, "supervisor", "cantidad errada")
	require.NoError(t, err)
	m := e.remoteMovement(t, r.MovementID)
	assert.Equal(t, entity.MovementStatusRejected, m.Status)
	assert.Equal(t, "cantidad errada", m.RejectionReason)
	assert.Equal(t, 140, e.remoteArticle(t, "a1").CurrentStock)
}

func TestListMovements_FiltraPorArticulo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	e.seedArticle(t, "a2", "FB002", 150, 20)
	for _, id := range []string{"a1", "a1", "a2"} {
		_, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: id, Quantity: 1, UserID: testUser})
		require.NoError(t, err)
	}

	list, err := e.ledger.ListMovements(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	all, err := e.ledger.ListMovements(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// ──────────────────────────────────────────────────────────────────────────────
// Camino sin conexión
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordExit_SinConexionSeEncolaYSeSincroniza(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	e.store.SetOffline(domain.ErrRemoteUnavailable)

	r, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 140, UserID: testUser})
	require.NoError(t, err)
	assert.False(t, r.Synced)
	assert.Equal(t, offline.AdvisoryOffline, r.Advisory)
	assert.Equal(t, 10, r.NewStock, "la caché refleja la salida")
	assert.Equal(t, entity.ArticleStatusLow, r.ArticleStatus)

	_, err = e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 20, UserID: testUser})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock, "sin conexión se valida contra la caché")

	e.store.SetOffline(nil)
	assert.Equal(t, 150, e.remoteArticle(t, "a1").CurrentStock)
	report, err := e.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 10, e.remoteArticle(t, "a1").CurrentStock)
	assert.NotNil(t, e.remoteMovement(t, r.MovementID), "el movimiento conserva el id entregado al usuario")
}

func TestRecordExit_StockConsumidoEnRemotoSeDescartaAlSincronizar(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	e.store.SetOffline(domain.ErrRemoteUnavailable)

	_, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 140, UserID: testUser})
	require.NoError(t, err)

	// Mientras tanto otro puesto dejó el artículo en 100.
	e.store.SetOffline(nil)
	doc, err := e.store.Get(ctx, entity.CollectionArticles, "a1")
	require.NoError(t, err)
	doc["currentStock"] = 100
	e.store.Seed(entity.CollectionArticles, "a1", doc)

	report, err := e.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 100, e.remoteArticle(t, "a1").CurrentStock)
	assert.Equal(t, 0, e.store.Count(entity.CollectionMovements))
}

func TestReplay_NoDuplicaLaSalida(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 150, 20)
	e.store.SetOffline(domain.ErrRemoteUnavailable)
	_, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 40, UserID: testUser})
	require.NoError(t, err)
	e.store.SetOffline(nil)

	ops, err := e.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	// Un corte a mitad de pasada deja la operación en la cola aunque ya se aplicó.
	require.NoError(t, e.executor.Replay(ctx, ops[0]))
	_, err = e.scheduler.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 110, e.remoteArticle(t, "a1").CurrentStock)
	assert.Equal(t, 1, e.store.Count(entity.CollectionMovements))
}

func TestRecordExit_EnLineaDetrasDeEntradaEncolada(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedArticle(t, "a1", "FB001", 0, 20)

	e.store.SetOffline(domain.ErrRemoteUnavailable)
	entry, err := e.ledger.RecordEntry(ctx, inventory.EntryInput{ArticleID: "a1", Quantity: 50, UserID: testUser})
	require.NoError(t, err)
	require.False(t, entry.Synced)
	assert.Equal(t, 50, entry.NewStock)

	// Reconecta antes de que pase el sincronizador.
	e.store.SetOffline(nil)
	exit, err := e.ledger.RecordExit(ctx, inventory.ExitInput{ArticleID: "a1", Quantity: 30, UserID: testUser})
	require.NoError(t, err, "la entrada local se confirma antes que la salida")
	assert.True(t, exit.Synced)
	assert.Equal(t, 20, exit.NewStock)

	assert.Equal(t, 20, e.remoteArticle(t, "a1").CurrentStock)
	assert.NotNil(t, e.remoteMovement(t, entry.MovementID))
	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	report, err := e.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, 20, e.remoteArticle(t, "a1").CurrentStock, "la entrada no se aplica dos veces")
}
