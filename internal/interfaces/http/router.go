package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ArticleUC  *usecase.ArticleUseCase
	SupplierUC *usecase.SupplierUseCase
	Ledger     *inventory.Ledger
	Reconciler *inventory.Reconciler
	Scheduler  *offline.Scheduler
	Queue      *offline.Queue
	JWTSecret  string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	reviewers := RequireRole(jwt.RoleAdmin, jwt.RoleSupervisor)

	// Articles
	articles := protected.Group("/articles")
	articleHandler := NewArticleHandler(deps.ArticleUC)
	articles.Post("/", articleHandler.Create)
	articles.Get("/", articleHandler.List)
	articles.Get("/valuation", articleHandler.Valuation)
	articles.Get("/:id", articleHandler.GetByID)
	articles.Put("/:id", articleHandler.Update)

	// Suppliers
	suppliers := protected.Group("/suppliers")
	supplierHandler := NewSupplierHandler(deps.SupplierUC)
	suppliers.Post("/", supplierHandler.Create)
	suppliers.Get("/", supplierHandler.List)
	suppliers.Get("/:id", supplierHandler.GetByID)
	suppliers.Delete("/:id", reviewers, supplierHandler.Deactivate)

	// Movements (libro de stock)
	movements := protected.Group("/movements")
	movementHandler := NewMovementHandler(deps.Ledger)
	movements.Post("/entries", movementHandler.RecordEntry)
	movements.Post("/exits", movementHandler.RecordExit)
	movements.Get("/", movementHandler.List)
	movements.Get("/:id", movementHandler.GetByID)
	movements.Post("/:id/validate", reviewers, movementHandler.Validate)
	movements.Post("/:id/reject", reviewers, movementHandler.Reject)

	// Inventories (conciliación)
	inventories := protected.Group("/inventories")
	reconciliationHandler := NewReconciliationHandler(deps.Reconciler)
	inventories.Post("/", reconciliationHandler.Create)
	inventories.Post("/items/:itemId/count", reconciliationHandler.CountItem)
	inventories.Get("/:id", reconciliationHandler.GetByID)
	inventories.Post("/:id/transition", reconciliationHandler.Transition)
	inventories.Post("/:id/items", reconciliationHandler.GenerateItems)
	inventories.Get("/:id/items", reconciliationHandler.ListItems)
	inventories.Post("/:id/apply", reviewers, reconciliationHandler.ApplyAdjustments)

	// Sync
	syncGroup := protected.Group("/sync")
	syncHandler := NewSyncHandler(deps.Scheduler, deps.Queue)
	syncGroup.Get("/status", syncHandler.Status)
	syncGroup.Post("/run", syncHandler.Run)
	syncGroup.Post("/dead-letters/requeue", reviewers, syncHandler.RequeueDeadLetters)
}
