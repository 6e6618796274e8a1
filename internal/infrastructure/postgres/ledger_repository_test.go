//go:build integration

package postgres

// Ejecutar con: go test -tags integration ./internal/infrastructure/postgres/... -v

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/domain/inventory"
	"github.com/jhoicas/farmacia-pos/pkg/config"
)

func setupLedger(t *testing.T) (*LedgerRepo, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("farmacia_test"),
		tcPostgres.WithUsername("farmacia"),
		tcPostgres.WithPassword("farmacia"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, config.DBConfig{DatabaseURL: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	// Idempotente.
	require.NoError(t, EnsureSchema(ctx, pool))
	return NewLedgerRepository(pool), pool
}

func collect(t *testing.T, txs func(func(entity.StockTransaction, error) bool)) []entity.StockTransaction {
	t.Helper()
	var out []entity.StockTransaction
	for tx, err := range txs {
		require.NoError(t, err)
		out = append(out, tx)
	}
	return out
}

func TestLedgerRepo_Integration(t *testing.T) {
	repo, pool := setupLedger(t)
	ctx := context.Background()

	t.Run("append assigns id, seq and monotonic created_at", func(t *testing.T) {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clock := []time.Time{base, base.Add(-time.Hour)}
		repo.now = func() time.Time {
			v := clock[0]
			if len(clock) > 1 {
				clock = clock[1:]
			}
			return v
		}
		defer func() { repo.now = time.Now }()

		a, err := repo.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 100, Type: entity.TransactionStockIn, UserID: "u1"})
		require.NoError(t, err)
		b, err := repo.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: -5, Type: entity.TransactionSale, UserID: "u1"})
		require.NoError(t, err)

		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Greater(t, b.Seq, a.Seq)
		assert.Equal(t, a.CreatedAt, b.CreatedAt, "el reloj retrocede: created_at se fija al anterior")

		got := collect(t, repo.ForProduct(ctx, "P1"))
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, int64(-5), got[1].QuantityChange)
		assert.Equal(t, entity.TransactionSale, got[1].Type)
	})

	t.Run("rows cannot be updated or deleted", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE stock_transactions SET quantity_change = 1`)
		require.Error(t, err)
		_, err = pool.Exec(ctx, `DELETE FROM stock_transactions`)
		require.Error(t, err)
	})

	t.Run("concurrent appends keep ids unique and fold to the server sum", func(t *testing.T) {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < 8; w++ {
			g.Go(func() error {
				for i := 0; i < 25; i++ {
					if _, err := repo.Append(gctx, entity.StockTransactionInput{ProductID: "P2", QuantityChange: 2, Type: entity.TransactionStockIn, UserID: "u2"}); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		n, err := repo.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 202, n)

		all := collect(t, repo.All(ctx))
		ids := make(map[string]struct{}, len(all))
		for i, tx := range all {
			ids[tx.ID] = struct{}{}
			if i > 0 {
				assert.Greater(t, tx.Seq, all[i-1].Seq)
				assert.False(t, tx.CreatedAt.Before(all[i-1].CreatedAt))
			}
		}
		assert.Len(t, ids, len(all))

		proj, err := inventory.Fold(repo.All(ctx))
		require.NoError(t, err)
		sums, err := repo.SumByProduct(ctx, all[len(all)-1].Seq)
		require.NoError(t, err)
		assert.Equal(t, int64(400), proj.Totals["P2"])
		assert.Equal(t, "400", sums["P2"].String())
		assert.Equal(t, "95", sums["P1"].String())

		first, err := repo.SumByProduct(ctx, all[0].Seq)
		require.NoError(t, err)
		assert.Equal(t, "100", first["P1"].String())
		assert.NotContains(t, first, "P2")

		_, err = inventory.VerifySnapshot(proj, repo.All(ctx))
		require.NoError(t, err)
		assert.Empty(t, inventory.DiffTotals(proj, sums))
	})

	t.Run("stops streaming when the consumer breaks", func(t *testing.T) {
		count := 0
		for _, err := range repo.All(ctx) {
			require.NoError(t, err)
			count++
			if count == 3 {
				break
			}
		}
		assert.Equal(t, 3, count)
	})
}
