package repository

import (
	"context"
	"iter"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
)

// LedgerRepository define el puerto del libro de stock (append-only).
// Append es la única mutación; nunca actualiza ni borra movimientos existentes
// y no aplica reglas de negocio (el stock negativo se registra tal cual).
type LedgerRepository interface {
	Append(ctx context.Context, in entity.StockTransactionInput) (entity.StockTransaction, error)
	// ForProduct recorre los movimientos del producto por CreatedAt ascendente; empates por Seq.
	ForProduct(ctx context.Context, productID string) iter.Seq2[entity.StockTransaction, error]
	// All recorre el libro completo en orden de inserción.
	All(ctx context.Context) iter.Seq2[entity.StockTransaction, error]
	Len(ctx context.Context) (int, error)
}

// LedgerAggregator lo implementan los libros que saben sumar movimientos sin recorrerlos uno a uno.
// SumByProduct suma quantity_change por producto entre los movimientos con Seq <= maxSeq.
type LedgerAggregator interface {
	SumByProduct(ctx context.Context, maxSeq int64) (map[string]decimal.Decimal, error)
}
