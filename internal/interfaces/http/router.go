package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/farmacia-pos/internal/application/catalog"
	"github.com/jhoicas/farmacia-pos/internal/application/inventory"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Inventory *inventory.Service
	Catalog   *catalog.Cache
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Products (protegido)
	products := protected.Group("/products")
	productHandler := NewProductHandler(deps.Inventory)
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.GetByID)
	products.Get("/:id/stock", productHandler.Stock)
	products.Get("/:id/transactions", productHandler.Transactions)

	// Inventory (protegido). Verificar el libro es tarea de administración.
	invGroup := protected.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.Inventory)
	invGroup.Post("/adjustments", inventoryHandler.Adjust)
	invGroup.Get("/low-stock", inventoryHandler.LowStock)
	invGroup.Post("/verify", RequireRole(RoleAdmin, RoleRegente), inventoryHandler.Verify)

	// Catalog (protegido)
	catalogGroup := protected.Group("/catalog", RequireRole(RoleAdmin, RoleRegente))
	catalogHandler := NewCatalogHandler(deps.Catalog)
	catalogGroup.Post("/refresh", catalogHandler.Refresh)
	catalogGroup.Get("/status", catalogHandler.Status)
}
