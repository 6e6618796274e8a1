package inventory

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/farmacia-pos/internal/domain"
	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
)

// Projector mantiene el stock actual derivado del libro: total por producto y suma por (producto, lote).
// Es el único escritor de la proyección; Apply es O(1) y Rebuild repite el libro completo.
type Projector struct {
	mu      sync.RWMutex
	totals  map[string]int64
	batches map[entity.StockKey]int64
	lastSeq int64
}

// NewProjector crea una proyección vacía.
func NewProjector() *Projector {
	return &Projector{
		totals:  make(map[string]int64),
		batches: make(map[entity.StockKey]int64),
	}
}

// Apply suma el movimiento a la proyección. Debe llamarse en el mismo orden en que se agregó al libro.
func (p *Projector) Apply(tx entity.StockTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	apply(p.totals, p.batches, tx)
	if tx.Seq > p.lastSeq {
		p.lastSeq = tx.Seq
	}
}

func apply(totals map[string]int64, batches map[entity.StockKey]int64, tx entity.StockTransaction) {
	totals[tx.ProductID] += tx.QuantityChange
	if tx.BatchID != "" {
		batches[entity.StockKey{ProductID: tx.ProductID, BatchID: tx.BatchID}] += tx.QuantityChange
	}
}

// CurrentStock devuelve la cantidad para el producto (batchID vacío) o para un lote.
// Sin movimientos la cantidad es 0.
func (p *Projector) CurrentStock(productID, batchID string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if batchID == "" {
		return p.totals[productID]
	}
	return p.batches[entity.StockKey{ProductID: productID, BatchID: batchID}]
}

// BatchStock devuelve las cantidades por lote de un producto.
func (p *Projector) BatchStock(productID string) map[string]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int64)
	for k, q := range p.batches {
		if k.ProductID == productID {
			out[k.BatchID] = q
		}
	}
	return out
}

// LastSeq último Seq aplicado.
func (p *Projector) LastSeq() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeq
}

// Projection copia inmutable del estado de la proyección.
type Projection struct {
	Totals  map[string]int64
	Batches map[entity.StockKey]int64
	LastSeq int64
}

// Snapshot copia el estado actual.
func (p *Projector) Snapshot() Projection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Projection{
		Totals:  maps.Clone(p.totals),
		Batches: maps.Clone(p.batches),
		LastSeq: p.lastSeq,
	}
}

// Fold repite una secuencia del libro sobre una proyección nueva.
func Fold(entries iter.Seq2[entity.StockTransaction, error]) (Projection, error) {
	proj, _, err := fold(entries, -1)
	return proj, err
}

// FoldUpTo repite el libro hasta lastSeq inclusive y devuelve cuántos movimientos aplicó.
// entries debe venir en orden de Seq; la lectura se corta en el primer Seq mayor.
func FoldUpTo(entries iter.Seq2[entity.StockTransaction, error], lastSeq int64) (Projection, int, error) {
	return fold(entries, lastSeq)
}

func fold(entries iter.Seq2[entity.StockTransaction, error], limit int64) (Projection, int, error) {
	proj := Projection{
		Totals:  make(map[string]int64),
		Batches: make(map[entity.StockKey]int64),
	}
	n := 0
	for tx, err := range entries {
		if err != nil {
			return Projection{}, 0, fmt.Errorf("replay ledger: %w", err)
		}
		if limit >= 0 && tx.Seq > limit {
			break
		}
		apply(proj.Totals, proj.Batches, tx)
		if tx.Seq > proj.LastSeq {
			proj.LastSeq = tx.Seq
		}
		n++
	}
	return proj, n, nil
}

// Rebuild reemplaza la proyección por la repetición completa del libro.
// Si la lectura falla la proyección actual queda intacta.
func (p *Projector) Rebuild(entries iter.Seq2[entity.StockTransaction, error]) error {
	proj, err := Fold(entries)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.totals = proj.Totals
	p.batches = proj.Batches
	p.lastSeq = proj.LastSeq
	p.mu.Unlock()
	return nil
}

// Mismatch diferencia entre la proyección incremental y la repetición del libro para una clave.
type Mismatch struct {
	Key       entity.StockKey
	Projected int64
	Replayed  int64
}

// ReplayMismatchError alarma de integridad: nunca se corrige sola.
type ReplayMismatchError struct {
	Mismatches []Mismatch
}

func (e *ReplayMismatchError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		key := m.Key.ProductID
		if m.Key.BatchID != "" {
			key += "/" + m.Key.BatchID
		}
		parts = append(parts, fmt.Sprintf("%s: proyectado=%d libro=%d", key, m.Projected, m.Replayed))
	}
	return fmt.Sprintf("%s (%s)", domain.ErrReplayMismatch.Error(), strings.Join(parts, "; "))
}

func (e *ReplayMismatchError) Unwrap() error { return domain.ErrReplayMismatch }

// Verify compara la proyección con una repetición del libro sin modificarla.
// Devuelve *ReplayMismatchError si alguna clave difiere.
func (p *Projector) Verify(entries iter.Seq2[entity.StockTransaction, error]) error {
	_, err := VerifySnapshot(p.Snapshot(), entries)
	return err
}

// VerifySnapshot repite el libro hasta snap.LastSeq y lo compara con snap. Los movimientos
// posteriores al snapshot se ignoran, así la verificación no necesita detener las escrituras.
// Devuelve la cantidad de movimientos repetidos.
func VerifySnapshot(snap Projection, entries iter.Seq2[entity.StockTransaction, error]) (int, error) {
	replayed, n, err := FoldUpTo(entries, snap.LastSeq)
	if err != nil {
		return n, err
	}
	if diff := Diff(snap, replayed); len(diff) > 0 {
		return n, &ReplayMismatchError{Mismatches: diff}
	}
	return n, nil
}

// DiffTotals compara los totales del snapshot con sumas calculadas fuera del proceso
// (por ejemplo en la base). Un producto ausente cuenta como 0.
func DiffTotals(snap Projection, sums map[string]decimal.Decimal) []Mismatch {
	var out []Mismatch
	keys := make(map[string]struct{}, len(snap.Totals)+len(sums))
	for id := range snap.Totals {
		keys[id] = struct{}{}
	}
	for id := range sums {
		keys[id] = struct{}{}
	}
	for _, id := range slices.Sorted(maps.Keys(keys)) {
		projected := snap.Totals[id]
		sum, ok := sums[id]
		if !ok {
			sum = decimal.Zero
		}
		if !sum.Equal(decimal.NewFromInt(projected)) {
			out = append(out, Mismatch{Key: entity.StockKey{ProductID: id}, Projected: projected, Replayed: sum.IntPart()})
		}
	}
	return out
}

// Diff lista las claves cuya cantidad difiere. Una clave ausente cuenta como 0.
func Diff(projected, replayed Projection) []Mismatch {
	var out []Mismatch
	for _, id := range unionKeys(projected.Totals, replayed.Totals) {
		if a, b := projected.Totals[id], replayed.Totals[id]; a != b {
			out = append(out, Mismatch{Key: entity.StockKey{ProductID: id}, Projected: a, Replayed: b})
		}
	}
	for _, k := range unionKeys(projected.Batches, replayed.Batches) {
		if a, b := projected.Batches[k], replayed.Batches[k]; a != b {
			out = append(out, Mismatch{Key: k, Projected: a, Replayed: b})
		}
	}
	slices.SortFunc(out, func(a, b Mismatch) int {
		if c := strings.Compare(a.Key.ProductID, b.Key.ProductID); c != 0 {
			return c
		}
		return strings.Compare(a.Key.BatchID, b.Key.BatchID)
	})
	return out
}

func unionKeys[K comparable](a, b map[K]int64) []K {
	keys := make([]K, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
