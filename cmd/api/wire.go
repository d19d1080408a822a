package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memstore"
	infamongo "github.com/jhoicas/stock-ledger/internal/infrastructure/mongo"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/sqlite"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Colecciones replicadas en la caché local.
var cachedCollections = []string{
	entity.CollectionArticles,
	entity.CollectionMovements,
	entity.CollectionInventories,
	entity.CollectionInventoryItems,
	entity.CollectionSuppliers,
}

const swaggerFile = "./docs/swagger.json"

// startupCheckTimeout espera máxima del ping informativo al remoto al arrancar.
const startupCheckTimeout = 3 * time.Second

// services componentes del proceso ya conectados entre sí.
type services struct {
	app       *fiber.App
	queue     *offline.Queue
	scheduler *offline.Scheduler
	articles  *usecase.ArticleUseCase
	ledger    *inventory.Ledger
}

// wire abre los almacenes y arma el servidor. Un remoto inalcanzable no impide arrancar:
// se sirve desde la caché local y las escrituras se encolan hasta que vuelva.
// cleanup libera la suscripción, el almacenamiento local y el remoto, en ese orden.
func wire(ctx context.Context, cfg *config.Config, log *logger.Logger) (*services, func(), error) {
	remote, closeRemote, err := openRemote(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	kv, err := sqlite.Open(cfg.Local.Path)
	if err != nil {
		closeRemote()
		return nil, nil, fmt.Errorf("almacenamiento local %s: %w", cfg.Local.Path, err)
	}

	cache := offline.NewCache(kv, log)
	if err := cache.Load(ctx, cachedCollections...); err != nil {
		log.Warn().Err(err).Msg("no se pudo restaurar la caché local")
	}
	stopFollow, err := cache.Follow(ctx, remote, cachedCollections...)
	if err != nil {
		log.Warn().Err(err).Msg("suscripción al remoto no disponible, se usa la caché local")
		stopFollow = func() {}
	}
	cleanup := func() {
		stopFollow()
		_ = kv.Close()
		closeRemote()
	}

	queue := offline.NewQueue(kv, log)
	if n, err := queue.Len(ctx); err != nil {
		log.Warn().Err(err).Msg("no se pudo leer la cola local")
	} else if n > 0 {
		log.Info().Int("pending", n).Msg("operaciones pendientes de una ejecución anterior")
	}

	registry := offline.NewRegistry()
	offline.RegisterDocumentHandlers(registry)
	inventory.RegisterHandlers(registry)
	usecase.RegisterArticleHandlers(registry)

	executor := offline.NewExecutor(remote, cache, queue, registry, cfg.Remote.WriteTimeout, log)
	scheduler := offline.NewScheduler(executor, queue, offline.SchedulerConfig{
		Interval:    cfg.Sync.Interval,
		MaxAttempts: cfg.Sync.MaxAttempts,
		BackoffMax:  cfg.Sync.BackoffMax,
	}, log)

	articleRepo := offline.NewRepository(repository.Articles, remote, cache, executor, log)
	supplierRepo := offline.NewRepository(repository.Suppliers, remote, cache, executor, log)
	movementRepo := offline.NewRepository(repository.Movements, remote, cache, executor, log)
	inventoryRepo := offline.NewRepository(repository.Inventories, remote, cache, executor, log)
	itemRepo := offline.NewRepository(repository.InventoryItems, remote, cache, executor, log)

	svc := &services{
		queue:     queue,
		scheduler: scheduler,
		articles:  usecase.NewArticleUseCase(articleRepo, executor),
		ledger:    inventory.NewLedger(executor, cache, movementRepo, log),
	}
	reconciler := inventory.NewReconciler(executor, cache, inventoryRepo, itemRepo, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.Remote.WriteTimeout + 5*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "Stock Ledger API",
		}))
	} else {
		log.Debug().Str("path", swaggerFile).Msg("swagger UI deshabilitado")
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		pending, _ := queue.Len(c.UserContext())
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "pending_operations": pending})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		ArticleUC:  svc.articles,
		SupplierUC: usecase.NewSupplierUseCase(supplierRepo),
		Ledger:     svc.ledger,
		Reconciler: reconciler,
		Scheduler:  scheduler,
		Queue:      queue,
		JWTSecret:  cfg.JWT.Secret,
	})
	svc.app = app
	return svc, cleanup, nil
}

// openRemote abre el almacén remoto según REMOTE_DRIVER. Solo falla por configuración
// inválida; la falta de red se informa y se deja al camino offline.
func openRemote(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.RemoteStore, func(), error) {
	switch cfg.Remote.Driver {
	case config.DriverMongo:
		store, err := infamongo.Connect(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
		defer cancel()
		if err := store.Ping(pctx); err != nil {
			log.Warn().Err(err).Msg("remoto no disponible al arrancar, se trabaja en local")
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	case config.DriverMemory:
		log.Warn().Msg("almacén remoto en memoria: los datos no sobreviven al proceso")
		return memstore.New(), func() {}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewDocumentStore(pool, log)
		pctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
		defer cancel()
		// Sin red el esquema se crea en la primera operación que llegue al servidor.
		if err := store.EnsureSchema(pctx); err != nil {
			log.Warn().Err(err).Msg("remoto no disponible al arrancar, se trabaja en local")
		}
		return store, pool.Close, nil
	}
}
