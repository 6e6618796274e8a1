package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto del catálogo.
// Solo se crea al parsear la fuente y se reemplaza completo en cada recarga; nunca se edita en sitio.
type Product struct {
	ID           string
	SKU          string // slug o código de barras
	Name         string
	Price        decimal.Decimal // precio de venta
	AverageCost  decimal.Decimal // costo promedio (se corrige re-importando)
	ReorderPoint int64
	CategoryID   string
	Attributes   map[string]string // columnas extra de la fuente
}

// ProductBatch representa un lote de un producto (vencimiento, fecha de compra, número de lote).
type ProductBatch struct {
	ID         string
	ProductID  string
	LotNumber  string
	ReceivedAt time.Time
	ExpiresAt  *time.Time
	Attributes map[string]string
}

// Expired indica si el lote está vencido en la fecha dada.
func (b ProductBatch) Expired(at time.Time) bool {
	return b.ExpiresAt != nil && !at.Before(*b.ExpiresAt)
}
