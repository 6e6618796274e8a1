package entity

import "time"

// TransactionType tipo de movimiento registrado en el libro de stock.
type TransactionType string

// Tipos de movimiento reconocidos.
const (
	TransactionStockIn    TransactionType = "stock_in"
	TransactionSale       TransactionType = "sale"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionReturn     TransactionType = "return"
	TransactionAssembly   TransactionType = "assembly"
)

// Valid indica si el tipo es uno de los valores reconocidos.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionStockIn, TransactionSale, TransactionAdjustment, TransactionReturn, TransactionAssembly:
		return true
	}
	return false
}

// References ids de correlación opcionales (orden, devolución, ítem de orden de compra).
type References struct {
	OrderID             string
	ReturnID            string
	PurchaseOrderItemID string
}

// StockTransactionInput datos que el llamador entrega al libro. ID, Seq y CreatedAt los asigna el libro.
type StockTransactionInput struct {
	ProductID      string
	BatchID        string // vacío = sin lote
	QuantityChange int64  // positivo entrada, negativo salida
	Type           TransactionType
	Reason         string
	References     References
	CreatedAt      time.Time // opcional
	UserID         string
}

// StockTransaction movimiento inmutable del libro. Se devuelve siempre por valor.
type StockTransaction struct {
	ID             string
	Seq            int64 // orden de inserción, monotónico
	ProductID      string
	BatchID        string
	QuantityChange int64
	Type           TransactionType
	Reason         string
	References     References
	CreatedAt      time.Time
	UserID         string
}

// StockKey identifica una cantidad proyectada. BatchID vacío = total del producto.
type StockKey struct {
	ProductID string
	BatchID   string
}

// CurrentStock cantidad derivada del libro para una clave.
type CurrentStock struct {
	StockKey
	Quantity int64
}
