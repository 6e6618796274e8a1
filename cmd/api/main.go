package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"

	"github.com/jhoicas/farmacia-pos/internal/application/catalog"
	"github.com/jhoicas/farmacia-pos/internal/application/inventory"
	dominventory "github.com/jhoicas/farmacia-pos/internal/domain/inventory"
	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
	"github.com/jhoicas/farmacia-pos/internal/infrastructure/catalogsource"
	"github.com/jhoicas/farmacia-pos/internal/infrastructure/memory"
	"github.com/jhoicas/farmacia-pos/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/farmacia-pos/internal/interfaces/http"
	"github.com/jhoicas/farmacia-pos/pkg/config"
	"github.com/jhoicas/farmacia-pos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ledger", cfg.Inventory.LedgerDriver).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var ledger repository.LedgerRepository
	switch cfg.Inventory.LedgerDriver {
	case config.LedgerDriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("esquema del libro de stock")
		}
		ledger = postgres.NewLedgerRepository(pool)
	default:
		log.Warn().Msg("libro de stock en memoria: los movimientos se pierden al reiniciar")
		ledger = memory.NewLedgerStore()
	}

	osFs := afero.NewOsFs()
	source := catalogsource.NewFileSource(osFs, cfg.Catalog.Path, cfg.Catalog.BatchesPath)
	cache := catalog.NewCache(source, nil, log)
	if err := cache.Refresh(ctx); err != nil {
		// Se reintenta en la primera lectura.
		log.Warn().Err(err).Str("path", cfg.Catalog.Path).Msg("catálogo no disponible al arrancar")
	}

	svc := inventory.NewService(cache, ledger, dominventory.NewProjector(), inventory.Config{
		AllowNegativeStock: cfg.Inventory.AllowNegativeStock,
		LowStockDefault:    cfg.Inventory.LowStockDefault,
	}, log)
	if err := svc.Rebuild(ctx); err != nil {
		log.Fatal().Err(err).Msg("reconstruir stock desde el libro")
	}
	go svc.RunVerifier(ctx, cfg.Inventory.VerifyInterval)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if ok, _ := afero.Exists(osFs, cfg.HTTP.SwaggerPath); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: cfg.HTTP.SwaggerPath,
			Path:     "docs",
			Title:    "Farmacia POS API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "catalog_version": cache.Status().Version})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Inventory: svc,
		Catalog:   cache,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
