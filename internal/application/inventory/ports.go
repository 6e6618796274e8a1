package inventory

import (
	"context"

	"github.com/jhoicas/farmacia-pos/internal/application/catalog"
)

// CatalogReader acceso al catálogo en memoria (implementado por catalog.Cache).
// Cada operación toma una sola View para no mezclar versiones del catálogo.
type CatalogReader interface {
	View(ctx context.Context) (*catalog.View, error)
}
