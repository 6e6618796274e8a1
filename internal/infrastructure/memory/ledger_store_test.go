package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/infrastructure/memory"
)

func collect(t *testing.T, seq func(func(entity.StockTransaction, error) bool)) []entity.StockTransaction {
	t.Helper()
	var out []entity.StockTransaction
	for tx, err := range seq {
		require.NoError(t, err)
		out = append(out, tx)
	}
	return out
}

func TestLedgerStore_AppendAsignaIDSeqYFecha(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := memory.NewLedgerStore(memory.WithClock(func() time.Time { return fixed }))

	a, err := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 100, Type: entity.TransactionStockIn, UserID: "u1"})
	require.NoError(t, err)
	b, err := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: -2, Type: entity.TransactionSale, UserID: "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Equal(t, fixed, b.CreatedAt, "empate de fecha")

	// El orden de empate lo decide Seq.
	got := collect(t, store.ForProduct(ctx, "P1"))
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestLedgerStore_FechaNuncaRetrocede(t *testing.T) {
	ctx := context.Background()
	times := []time.Time{
		time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
		time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC), // reloj retrocede
	}
	i := 0
	store := memory.NewLedgerStore(memory.WithClock(func() time.Time { v := times[i]; i++; return v }))

	a, _ := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 1, Type: entity.TransactionStockIn})
	b, _ := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 1, Type: entity.TransactionStockIn})

	assert.False(t, b.CreatedAt.Before(a.CreatedAt))
}

func TestLedgerStore_FechaExplicitaOrdena(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLedgerStore()
	late := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	_, _ = store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 1, Type: entity.TransactionStockIn, CreatedAt: late})
	_, _ = store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 2, Type: entity.TransactionStockIn, CreatedAt: early})
	_, _ = store.Append(ctx, entity.StockTransactionInput{ProductID: "P2", QuantityChange: 3, Type: entity.TransactionStockIn, CreatedAt: early})

	got := collect(t, store.ForProduct(ctx, "P1"))
	require.Len(t, got, 2)
	assert.Equal(t, early, got[0].CreatedAt)
	assert.Equal(t, late, got[1].CreatedAt)

	all := collect(t, store.All(ctx))
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})
}

func TestLedgerStore_EntradasInmutables(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLedgerStore()
	tx, err := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 5, Type: entity.TransactionStockIn})
	require.NoError(t, err)

	tx.QuantityChange = 9999
	first := collect(t, store.ForProduct(ctx, "P1"))
	first[0].QuantityChange = -1

	got := collect(t, store.ForProduct(ctx, "P1"))
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].QuantityChange)
}

func TestLedgerStore_SinReglasDeNegocio(t *testing.T) {
	store := memory.NewLedgerStore()
	tx, err := store.Append(context.Background(), entity.StockTransactionInput{ProductID: "P1", QuantityChange: -50, Type: entity.TransactionSale})
	require.NoError(t, err)
	assert.Equal(t, int64(-50), tx.QuantityChange)
}

func TestLedgerStore_AppendConcurrenteIDsUnicos(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLedgerStore()
	const workers, per = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				_, err := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 1, Type: entity.TransactionStockIn})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers*per, n)

	ids := make(map[string]bool, n)
	seqs := make(map[int64]bool, n)
	prev := entity.StockTransaction{}
	for tx, err := range store.ForProduct(ctx, "P1") {
		require.NoError(t, err)
		ids[tx.ID] = true
		seqs[tx.Seq] = true
		if prev.ID != "" {
			assert.False(t, tx.CreatedAt.Before(prev.CreatedAt))
			assert.Greater(t, tx.Seq, prev.Seq)
		}
		prev = tx
	}
	assert.Len(t, ids, n)
	assert.Len(t, seqs, n)
}

func TestLedgerStore_ContextoCancelado(t *testing.T) {
	store := memory.NewLedgerStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, entity.StockTransactionInput{ProductID: "P1", QuantityChange: 1})
	require.ErrorIs(t, err, context.Canceled)
	n, _ := store.Len(context.Background())
	assert.Zero(t, n)
}

func TestLedgerStore_SumByProductHastaSeq(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLedgerStore()
	for _, in := range []entity.StockTransactionInput{
		{ProductID: "P1", QuantityChange: 100, Type: entity.TransactionStockIn, UserID: "u"},
		{ProductID: "P2", QuantityChange: 7, Type: entity.TransactionStockIn, UserID: "u"},
		{ProductID: "P1", QuantityChange: -5, Type: entity.TransactionSale, UserID: "u"},
		{ProductID: "P3", QuantityChange: 4, Type: entity.TransactionStockIn, UserID: "u"},
	} {
		_, err := store.Append(ctx, in)
		require.NoError(t, err)
	}

	sums, err := store.SumByProduct(ctx, 3)

	require.NoError(t, err)
	require.Len(t, sums, 2, "P3 queda después del corte")
	assert.Equal(t, "95", sums["P1"].String())
	assert.Equal(t, "7", sums["P2"].String())
}
