package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/farmacia-pos/internal/application/catalog"
	"github.com/jhoicas/farmacia-pos/internal/application/dto"
	"github.com/jhoicas/farmacia-pos/internal/domain"
	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/domain/inventory"
	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
	"github.com/jhoicas/farmacia-pos/pkg/logger"
)

// Config políticas del servicio de inventario.
type Config struct {
	// AllowNegativeStock permite salidas que dejen el stock por debajo de cero.
	AllowNegativeStock bool
	// LowStockDefault umbral de stock bajo para productos sin reorder_point.
	LowStockDefault int64
}

// Service fachada de inventario: une el catálogo en caché con la proyección de stock
// y es el único punto de escritura sobre el libro.
type Service struct {
	catalog   CatalogReader
	ledger    repository.LedgerRepository
	projector *inventory.Projector
	cfg       Config
	log       *logger.Logger

	// mu serializa Append+Apply para que la proyección siga el orden del libro.
	mu sync.Mutex
}

// NewService construye el servicio. La proyección debe reconstruirse con Rebuild antes de servir
// si el libro ya tiene movimientos.
func NewService(
	catalog CatalogReader,
	ledger repository.LedgerRepository,
	projector *inventory.Projector,
	cfg Config,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		catalog:   catalog,
		ledger:    ledger,
		projector: projector,
		cfg:       cfg,
		log:       log.Component("inventory"),
	}
}

// AdjustStockInput entrada del comando adjustStock.
type AdjustStockInput struct {
	ProductID  string
	BatchID    string
	Delta      int64
	Type       entity.TransactionType
	Reason     string
	References entity.References
	UserID     string
}

// AdjustStock valida el ajuste y, si es válido, lo agrega al libro y lo aplica a la proyección.
// Un ajuste rechazado no deja rastro en el libro.
func (s *Service) AdjustStock(ctx context.Context, in AdjustStockInput) (entity.StockTransaction, error) {
	if in.Delta == 0 {
		return entity.StockTransaction{}, fmt.Errorf("%w: la cantidad no puede ser cero", domain.ErrInvalidAdjustment)
	}
	if !in.Type.Valid() {
		return entity.StockTransaction{}, fmt.Errorf("%w: tipo %q no reconocido", domain.ErrInvalidAdjustment, in.Type)
	}
	if in.UserID == "" {
		return entity.StockTransaction{}, fmt.Errorf("%w: usuario requerido", domain.ErrInvalidAdjustment)
	}
	view, err := s.catalog.View(ctx)
	if err != nil {
		return entity.StockTransaction{}, err
	}
	if view.Get(in.ProductID) == nil {
		return entity.StockTransaction{}, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, in.ProductID)
	}
	if in.BatchID != "" && view.Batch(in.ProductID, in.BatchID) == nil {
		return entity.StockTransaction{}, fmt.Errorf("%w: lote %s no pertenece al producto %s", domain.ErrInvalidAdjustment, in.BatchID, in.ProductID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.AllowNegativeStock && in.Delta < 0 {
		if err := s.checkAvailable(in.ProductID, in.BatchID, in.Delta); err != nil {
			return entity.StockTransaction{}, err
		}
	}

	tx, err := s.ledger.Append(ctx, entity.StockTransactionInput{
		ProductID:      in.ProductID,
		BatchID:        in.BatchID,
		QuantityChange: in.Delta,
		Type:           in.Type,
		Reason:         in.Reason,
		References:     in.References,
		UserID:         in.UserID,
	})
	if err != nil {
		return entity.StockTransaction{}, fmt.Errorf("registrar movimiento: %w", err)
	}
	if last := s.projector.LastSeq(); tx.Seq <= last {
		s.log.Warn().Int64("seq", tx.Seq).Int64("last_seq", last).Msg("movimiento fuera de orden respecto a la proyección")
	}
	s.projector.Apply(tx)

	s.log.Debug().
		Str("tx_id", tx.ID).
		Str("product_id", tx.ProductID).
		Str("batch_id", tx.BatchID).
		Int64("delta", tx.QuantityChange).
		Str("type", string(tx.Type)).
		Str("user_id", tx.UserID).
		Msg("movimiento registrado")
	return tx, nil
}

// checkAvailable exige que la salida no deje negativo ni el lote ni el total del producto:
// las ventas sin lote descuentan solo del total. Se llama con mu tomado.
func (s *Service) checkAvailable(productID, batchID string, delta int64) error {
	total := s.projector.CurrentStock(productID, "")
	if total+delta < 0 {
		return fmt.Errorf("%w: disponible %d, solicitado %d", domain.ErrInsufficientStock, total, -delta)
	}
	if batchID == "" {
		return nil
	}
	if inBatch := s.projector.CurrentStock(productID, batchID); inBatch+delta < 0 {
		return fmt.Errorf("%w: lote %s disponible %d, solicitado %d", domain.ErrInsufficientStock, batchID, inBatch, -delta)
	}
	return nil
}

// ListProducts página del catálogo con el stock vivo de cada producto.
func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*dto.ProductListResponse, error) {
	page = max(page, 1)
	pageSize = max(pageSize, 1)
	catalogView, err := s.catalog.View(ctx)
	if err != nil {
		return nil, err
	}
	products, total := catalogView.List(page, pageSize)
	items := make([]dto.ProductView, 0, len(products))
	for _, p := range products {
		items = append(items, s.view(catalogView, p))
	}
	return &dto.ProductListResponse{
		Items: items,
		Page:  dto.PageResponse{Page: page, PageSize: pageSize, Total: total},
	}, nil
}

// GetProduct obtiene un producto con su stock; nil si no existe.
func (s *Service) GetProduct(ctx context.Context, id string) (*dto.ProductView, error) {
	catalogView, err := s.catalog.View(ctx)
	if err != nil {
		return nil, err
	}
	p := catalogView.Get(id)
	if p == nil {
		return nil, nil
	}
	view := s.view(catalogView, *p)
	return &view, nil
}

// CurrentStock cantidad actual del producto (batchID vacío) o del lote. Sin movimientos es 0.
func (s *Service) CurrentStock(_ context.Context, productID, batchID string) int64 {
	return s.projector.CurrentStock(productID, batchID)
}

// History movimientos del producto en orden cronológico.
func (s *Service) History(ctx context.Context, productID string) ([]entity.StockTransaction, error) {
	var out []entity.StockTransaction
	for tx, err := range s.ledger.ForProduct(ctx, productID) {
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// LowStock productos con stock en o por debajo de su punto de reorden.
func (s *Service) LowStock(ctx context.Context) ([]dto.ProductView, error) {
	catalogView, err := s.catalog.View(ctx)
	if err != nil {
		return nil, err
	}
	out := []dto.ProductView{}
	for _, p := range catalogView.All() {
		if view := s.view(catalogView, p); view.LowStock {
			out = append(out, view)
		}
	}
	return out, nil
}

// Rebuild reconstruye la proyección desde el libro completo (arranque o recuperación).
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	if err := s.projector.Rebuild(s.ledger.All(ctx)); err != nil {
		return fmt.Errorf("reconstruir proyección: %w", err)
	}
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return fmt.Errorf("contar movimientos: %w", err)
	}
	s.log.Info().Int("transactions", n).Int64("last_seq", s.projector.LastSeq()).Dur("elapsed", time.Since(start)).Msg("proyección reconstruida")
	return nil
}

// Verify compara la proyección con una repetición del libro. Solo toma mu para copiar la
// proyección; la repetición corre sin bloquear AdjustStock y se corta en el último Seq copiado.
// Si el libro sabe sumar en origen (repository.LedgerAggregator) también se contrastan esos totales.
// Una diferencia es una alarma de integridad: se registra como error y no se corrige.
// Devuelve la cantidad de movimientos repetidos.
func (s *Service) Verify(ctx context.Context) (int, error) {
	s.mu.Lock()
	snap := s.projector.Snapshot()
	s.mu.Unlock()

	n, err := inventory.VerifySnapshot(snap, s.ledger.All(ctx))
	if err == nil {
		err = s.verifyTotals(ctx, snap)
	}
	var mismatch *inventory.ReplayMismatchError
	if errors.As(err, &mismatch) {
		s.log.Error().Err(err).Int("keys", len(mismatch.Mismatches)).Int64("last_seq", snap.LastSeq).Msg("ALERTA: la proyección de stock no coincide con el libro")
	}
	return n, err
}

func (s *Service) verifyTotals(ctx context.Context, snap inventory.Projection) error {
	agg, ok := s.ledger.(repository.LedgerAggregator)
	if !ok {
		return nil
	}
	sums, err := agg.SumByProduct(ctx, snap.LastSeq)
	if err != nil {
		return fmt.Errorf("sumar libro: %w", err)
	}
	if diff := inventory.DiffTotals(snap, sums); len(diff) > 0 {
		return &inventory.ReplayMismatchError{Mismatches: diff}
	}
	return nil
}

// RunVerifier ejecuta Verify cada interval hasta que ctx termine.
func (s *Service) RunVerifier(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Verify(ctx); err != nil && !errors.Is(err, domain.ErrReplayMismatch) && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("verificación de proyección no completada")
			}
		}
	}
}

func (s *Service) view(catalogView *catalog.View, p entity.Product) dto.ProductView {
	threshold := p.ReorderPoint
	if threshold == 0 {
		threshold = s.cfg.LowStockDefault
	}
	view := dto.NewProductView(p, s.projector.CurrentStock(p.ID, ""), threshold)
	for _, b := range catalogView.Batches(p.ID) {
		view.Batches = append(view.Batches, dto.BatchStockView{
			BatchID:    b.ID,
			LotNumber:  b.LotNumber,
			ReceivedAt: b.ReceivedAt,
			ExpiresAt:  b.ExpiresAt,
			Quantity:   s.projector.CurrentStock(p.ID, b.ID),
		})
	}
	return view
}
