package memory

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
)

var (
	_ repository.LedgerRepository = (*LedgerStore)(nil)
	_ repository.LedgerAggregator = (*LedgerStore)(nil)
)

// LedgerStore libro de stock en memoria del proceso. Los Append se serializan con un único lock
// para garantizar ids únicos y orden total; los lectores trabajan sobre copias.
type LedgerStore struct {
	mu        sync.RWMutex
	entries   []entity.StockTransaction
	byProduct map[string][]entity.StockTransaction
	seq       int64
	last      time.Time
	now       func() time.Time
}

// Option configura el LedgerStore.
type Option func(*LedgerStore)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *LedgerStore) { s.now = now }
}

// NewLedgerStore construye un libro vacío.
func NewLedgerStore(opts ...Option) *LedgerStore {
	s := &LedgerStore{
		byProduct: make(map[string][]entity.StockTransaction),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append registra el movimiento. Asigna ID, Seq y, si no viene, CreatedAt (nunca anterior al último asignado).
func (s *LedgerStore) Append(ctx context.Context, in entity.StockTransactionInput) (entity.StockTransaction, error) {
	if err := ctx.Err(); err != nil {
		return entity.StockTransaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
		if createdAt.Before(s.last) {
			createdAt = s.last
		}
		s.last = createdAt
	}
	s.seq++
	tx := entity.StockTransaction{
		ID:             uuid.New().String(),
		Seq:            s.seq,
		ProductID:      in.ProductID,
		BatchID:        in.BatchID,
		QuantityChange: in.QuantityChange,
		Type:           in.Type,
		Reason:         in.Reason,
		References:     in.References,
		CreatedAt:      createdAt,
		UserID:         in.UserID,
	}
	s.entries = append(s.entries, tx)

	// Mantiene el índice del producto ordenado por (CreatedAt, Seq).
	list := s.byProduct[tx.ProductID]
	i, _ := slices.BinarySearchFunc(list, tx, compareTx)
	s.byProduct[tx.ProductID] = slices.Insert(list, i, tx)
	return tx, nil
}

func compareTx(a, b entity.StockTransaction) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

// ForProduct recorre una copia de los movimientos del producto tomada al inicio de la iteración.
func (s *LedgerStore) ForProduct(ctx context.Context, productID string) iter.Seq2[entity.StockTransaction, error] {
	return func(yield func(entity.StockTransaction, error) bool) {
		s.mu.RLock()
		list := slices.Clone(s.byProduct[productID])
		s.mu.RUnlock()
		each(ctx, list, yield)
	}
}

// All recorre el libro completo en orden de inserción.
func (s *LedgerStore) All(ctx context.Context) iter.Seq2[entity.StockTransaction, error] {
	return func(yield func(entity.StockTransaction, error) bool) {
		s.mu.RLock()
		list := slices.Clone(s.entries)
		s.mu.RUnlock()
		each(ctx, list, yield)
	}
}

func each(ctx context.Context, list []entity.StockTransaction, yield func(entity.StockTransaction, error) bool) {
	for _, tx := range list {
		if err := ctx.Err(); err != nil {
			yield(entity.StockTransaction{}, err)
			return
		}
		if !yield(tx, nil) {
			return
		}
	}
}

// Len cantidad de movimientos registrados.
func (s *LedgerStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// SumByProduct suma los movimientos con Seq <= maxSeq por producto.
func (s *LedgerStore) SumByProduct(ctx context.Context, maxSeq int64) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := make(map[string]int64)
	for _, tx := range s.entries {
		if tx.Seq > maxSeq {
			break
		}
		sums[tx.ProductID] += tx.QuantityChange
	}
	out := make(map[string]decimal.Decimal, len(sums))
	for id, n := range sums {
		out[id] = decimal.NewFromInt(n)
	}
	return out, nil
}
