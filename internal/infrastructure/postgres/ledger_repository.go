package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
)

var (
	_ repository.LedgerRepository = (*LedgerRepo)(nil)
	_ repository.LedgerAggregator = (*LedgerRepo)(nil)
)

// ledgerLockKey clave del advisory lock que serializa los Append entre procesos.
const ledgerLockKey int64 = 0x5354_4f43_4b4c_4544

const txColumns = `seq, id, product_id, batch_id, quantity_change, type, reason,
	order_id, return_id, purchase_order_item_id, created_at, user_id`

// LedgerRepo libro de stock sobre PostgreSQL. Solo inserta: la tabla rechaza UPDATE y DELETE.
type LedgerRepo struct {
	pool   *pgxpool.Pool
	runner *TxRunner
	now    func() time.Time
}

// NewLedgerRepository construye el adaptador sobre el pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool, runner: NewTxRunner(pool), now: time.Now}
}

// Append inserta el movimiento dentro de una transacción que toma el advisory lock del libro,
// de modo que seq y created_at crecen juntos aunque varios procesos escriban.
func (r *LedgerRepo) Append(ctx context.Context, in entity.StockTransactionInput) (entity.StockTransaction, error) {
	tx := entity.StockTransaction{
		ProductID:      in.ProductID,
		BatchID:        in.BatchID,
		QuantityChange: in.QuantityChange,
		Type:           in.Type,
		Reason:         in.Reason,
		References:     in.References,
		UserID:         in.UserID,
	}
	err := r.runner.Run(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}
		createdAt := in.CreatedAt
		if createdAt.IsZero() {
			// Precisión de microsegundos, la misma que guarda timestamptz.
			createdAt = r.now().UTC().Truncate(time.Microsecond)
			var last time.Time
			err := q.QueryRow(ctx, `SELECT created_at FROM stock_transactions ORDER BY seq DESC LIMIT 1`).Scan(&last)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("last created_at: %w", err)
			}
			if createdAt.Before(last) {
				createdAt = last
			}
		}
		tx.ID = uuid.New().String()
		err := q.QueryRow(ctx, `
			INSERT INTO stock_transactions (id, product_id, batch_id, quantity_change, type, reason,
				order_id, return_id, purchase_order_item_id, created_at, user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING seq, created_at`,
			tx.ID, tx.ProductID, tx.BatchID, tx.QuantityChange, string(tx.Type), tx.Reason,
			tx.References.OrderID, tx.References.ReturnID, tx.References.PurchaseOrderItemID,
			createdAt, tx.UserID,
		).Scan(&tx.Seq, &tx.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("id de movimiento duplicado %s: %w", tx.ID, err)
			}
			return fmt.Errorf("insert stock transaction: %w", err)
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		return nil
	})
	if err != nil {
		return entity.StockTransaction{}, err
	}
	return tx, nil
}

// ForProduct recorre los movimientos del producto fila a fila, por created_at y luego seq.
func (r *LedgerRepo) ForProduct(ctx context.Context, productID string) iter.Seq2[entity.StockTransaction, error] {
	return r.stream(ctx, `SELECT `+txColumns+` FROM stock_transactions WHERE product_id = $1 ORDER BY created_at, seq`, productID)
}

// All recorre el libro completo en orden de inserción.
func (r *LedgerRepo) All(ctx context.Context) iter.Seq2[entity.StockTransaction, error] {
	return r.stream(ctx, `SELECT `+txColumns+` FROM stock_transactions ORDER BY seq`)
}

// Len cantidad de movimientos.
func (r *LedgerRepo) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stock_transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stock transactions: %w", err)
	}
	return n, nil
}

// SumByProduct suma en el servidor los movimientos con seq <= maxSeq. sum(bigint) devuelve NUMERIC,
// que el codec registrado en el pool lee como decimal.
func (r *LedgerRepo) SumByProduct(ctx context.Context, maxSeq int64) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, sum(quantity_change)
		FROM stock_transactions
		WHERE seq <= $1
		GROUP BY product_id`, maxSeq)
	if err != nil {
		return nil, fmt.Errorf("sum stock transactions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var productID string
		var total decimal.Decimal
		if err := rows.Scan(&productID, &total); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		out[productID] = total
	}
	return out, rows.Err()
}

func (r *LedgerRepo) stream(ctx context.Context, query string, args ...any) iter.Seq2[entity.StockTransaction, error] {
	return func(yield func(entity.StockTransaction, error) bool) {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(entity.StockTransaction{}, fmt.Errorf("query stock transactions: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			tx, err := scanTransaction(rows)
			if err != nil {
				yield(entity.StockTransaction{}, err)
				return
			}
			if !yield(tx, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(entity.StockTransaction{}, fmt.Errorf("iterate stock transactions: %w", err))
		}
	}
}

// isUniqueViolation reporta si err viene de una restricción UNIQUE (SQLSTATE 23505),
// el caso de un id de movimiento repetido.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanTransaction(row pgx.Row) (entity.StockTransaction, error) {
	var tx entity.StockTransaction
	var typ string
	err := row.Scan(
		&tx.Seq, &tx.ID, &tx.ProductID, &tx.BatchID, &tx.QuantityChange, &typ, &tx.Reason,
		&tx.References.OrderID, &tx.References.ReturnID, &tx.References.PurchaseOrderItemID,
		&tx.CreatedAt, &tx.UserID,
	)
	if err != nil {
		return entity.StockTransaction{}, fmt.Errorf("scan stock transaction: %w", err)
	}
	tx.Type = entity.TransactionType(typ)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}
