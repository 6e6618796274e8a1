package dto

import (
	"time"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
)

// AdjustStockRequest body para POST /api/inventory/adjustments. El usuario lo aporta el token.
type AdjustStockRequest struct {
	ProductID           string `json:"product_id" validate:"required"`
	BatchID             string `json:"batch_id,omitempty"`
	Delta               int64  `json:"delta" validate:"required"`
	Type                string `json:"type" validate:"required,oneof=stock_in sale adjustment return assembly"`
	Reason              string `json:"reason,omitempty" validate:"max=500"`
	OrderID             string `json:"order_id,omitempty"`
	ReturnID            string `json:"return_id,omitempty"`
	PurchaseOrderItemID string `json:"purchase_order_item_id,omitempty"`
}

// StockTransactionResponse movimiento del libro.
type StockTransactionResponse struct {
	ID                  string    `json:"id"`
	Seq                 int64     `json:"seq"`
	ProductID           string    `json:"product_id"`
	BatchID             string    `json:"batch_id,omitempty"`
	QuantityChange      int64     `json:"quantity_change"`
	Type                string    `json:"type"`
	Reason              string    `json:"reason,omitempty"`
	OrderID             string    `json:"order_id,omitempty"`
	ReturnID            string    `json:"return_id,omitempty"`
	PurchaseOrderItemID string    `json:"purchase_order_item_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UserID              string    `json:"user_id"`
}

// FromTransaction convierte un movimiento del libro a su respuesta.
func FromTransaction(tx entity.StockTransaction) StockTransactionResponse {
	return StockTransactionResponse{
		ID:                  tx.ID,
		Seq:                 tx.Seq,
		ProductID:           tx.ProductID,
		BatchID:             tx.BatchID,
		QuantityChange:      tx.QuantityChange,
		Type:                string(tx.Type),
		Reason:              tx.Reason,
		OrderID:             tx.References.OrderID,
		ReturnID:            tx.References.ReturnID,
		PurchaseOrderItemID: tx.References.PurchaseOrderItemID,
		CreatedAt:           tx.CreatedAt,
		UserID:              tx.UserID,
	}
}

// StockResponse stock actual de un producto o lote.
type StockResponse struct {
	ProductID string `json:"product_id"`
	BatchID   string `json:"batch_id,omitempty"`
	Quantity  int64  `json:"quantity"`
}

// MismatchItem clave con diferencia entre proyección y libro.
type MismatchItem struct {
	ProductID string `json:"product_id"`
	BatchID   string `json:"batch_id,omitempty"`
	Projected int64  `json:"projected"`
	Replayed  int64  `json:"replayed"`
}

// VerifyResponse resultado de POST /api/inventory/verify.
type VerifyResponse struct {
	Consistent   bool           `json:"consistent"`
	Transactions int            `json:"transactions"`
	Mismatches   []MismatchItem `json:"mismatches,omitempty"`
}
