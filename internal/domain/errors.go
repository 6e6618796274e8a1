package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// ErrUnknownProduct el producto no existe en el catálogo vigente.
	ErrUnknownProduct = errors.New("producto desconocido")
	// ErrInvalidAdjustment el ajuste fue rechazado antes de escribir en el libro.
	ErrInvalidAdjustment = errors.New("ajuste de stock inválido")
	// ErrCatalogLoad la fuente del catálogo no se pudo leer; se conserva el catálogo anterior.
	ErrCatalogLoad = errors.New("no se pudo cargar el catálogo")
	// ErrReplayMismatch la proyección de stock no coincide con la reconstrucción del libro.
	ErrReplayMismatch = errors.New("la proyección de stock no coincide con el libro")
)
