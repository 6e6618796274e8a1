package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
)

// BatchStockView lote con su cantidad actual.
type BatchStockView struct {
	BatchID    string     `json:"batch_id"`
	LotNumber  string     `json:"lot_number,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Quantity   int64      `json:"quantity"`
}

// ProductView producto del catálogo unido con su stock vivo.
type ProductView struct {
	ID           string            `json:"id"`
	SKU          string            `json:"sku"`
	Name         string            `json:"name"`
	Price        decimal.Decimal   `json:"price"`
	AverageCost  decimal.Decimal   `json:"average_cost"`
	ReorderPoint int64             `json:"reorder_point"`
	CategoryID   string            `json:"category_id,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Quantity     int64             `json:"quantity"`
	StockValue   decimal.Decimal   `json:"stock_value"` // Quantity * AverageCost
	LowStock     bool              `json:"low_stock"`
	Batches      []BatchStockView  `json:"batches,omitempty"`
}

// ProductListResponse lista paginada de productos.
type ProductListResponse struct {
	Items []ProductView `json:"items"`
	Page  PageResponse  `json:"page"`
}

// NewProductView arma la vista; threshold es el umbral de stock bajo ya resuelto.
func NewProductView(p entity.Product, quantity, threshold int64) ProductView {
	return ProductView{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		Price:        p.Price,
		AverageCost:  p.AverageCost,
		ReorderPoint: p.ReorderPoint,
		CategoryID:   p.CategoryID,
		Attributes:   p.Attributes,
		Quantity:     quantity,
		StockValue:   decimal.NewFromInt(quantity).Mul(p.AverageCost),
		LowStock:     quantity <= threshold,
	}
}

// CatalogStatusResponse estado del catálogo en memoria.
type CatalogStatusResponse struct {
	Loaded      bool           `json:"loaded"`
	Version     int64          `json:"version"`
	LoadedAt    time.Time      `json:"loaded_at"`
	Products    int            `json:"products"`
	RowErrors   []RowErrorItem `json:"row_errors"`
	BatchErrors []RowErrorItem `json:"batch_errors"`
}

// RowErrorItem fila descartada al parsear la fuente.
type RowErrorItem struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}
