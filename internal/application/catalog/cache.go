package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/farmacia-pos/internal/domain"
	domcatalog "github.com/jhoicas/farmacia-pos/internal/domain/catalog"
	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
	"github.com/jhoicas/farmacia-pos/pkg/logger"
)

// LoadError la fuente no se pudo leer. El catálogo anterior sigue vigente.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", domain.ErrCatalogLoad.Error(), e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{domain.ErrCatalogLoad, e.Err} }

type snapshot struct {
	version     int64
	loadedAt    time.Time
	products    []entity.Product
	index       map[string]int
	batches     map[string][]entity.ProductBatch
	rowErrors   []domcatalog.RowError
	batchErrors []domcatalog.RowError
}

// Status metadatos del catálogo publicado.
type Status struct {
	Loaded      bool
	Version     int64
	LoadedAt    time.Time
	Products    int
	RowErrors   []domcatalog.RowError
	BatchErrors []domcatalog.RowError
}

// Cache mantiene en memoria el último catálogo parseado con éxito.
// Los lectores no bloquean: leen un snapshot inmutable publicado con un swap atómico.
// Refresh admite un solo parse en curso; una recarga fallida o cancelada no publica nada.
type Cache struct {
	source  repository.CatalogSource
	parser  *domcatalog.Parser
	log     *logger.Logger
	now     func() time.Time
	sem     *semaphore.Weighted
	current atomic.Pointer[snapshot]
}

// NewCache construye la caché sobre la fuente dada. No lee la fuente hasta el primer acceso.
func NewCache(source repository.CatalogSource, parser *domcatalog.Parser, log *logger.Logger) *Cache {
	if parser == nil {
		parser = domcatalog.NewParser()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		source: source,
		parser: parser,
		log:    log.Component("catalog"),
		now:    time.Now,
		sem:    semaphore.NewWeighted(1),
	}
}

// Refresh vuelve a leer y parsear la fuente y publica el resultado.
// Si ya hay una recarga en curso espera a que termine (o a que ctx se cancele).
func (c *Cache) Refresh(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	return c.load(ctx)
}

// ensureLoaded carga el catálogo en el primer acceso. Las cargas posteriores solo ocurren vía Refresh.
func (c *Cache) ensureLoaded(ctx context.Context) (*snapshot, error) {
	if snap := c.current.Load(); snap != nil {
		return snap, nil
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	if snap := c.current.Load(); snap != nil {
		return snap, nil
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c.current.Load(), nil
}

func (c *Cache) load(ctx context.Context) error {
	start := c.now()
	raw, err := c.source.Read(ctx)
	if err != nil {
		return c.readFailed(ctx, "catálogo", err)
	}
	var rawBatches []byte
	if bs, ok := c.source.(repository.BatchSource); ok {
		if rawBatches, err = bs.ReadBatches(ctx); err != nil {
			return c.readFailed(ctx, "lotes", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	products, rowErrs := c.parser.Parse(raw)
	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	batches := make(map[string][]entity.ProductBatch)
	var batchErrs []domcatalog.RowError
	if rawBatches != nil {
		parsed, errs := c.parser.ParseBatches(rawBatches)
		batchErrs = errs
		for _, b := range parsed {
			if _, ok := index[b.ProductID]; !ok {
				batchErrs = append(batchErrs, domcatalog.RowError{
					Line:    b.Line,
					Field:   "product_id",
					Message: fmt.Sprintf("lote %s de producto inexistente %s", b.ID, b.ProductID),
				})
				continue
			}
			batches[b.ProductID] = append(batches[b.ProductID], b.ProductBatch)
		}
	}

	// Un parse cancelado se descarta: el snapshot vigente sigue siendo la autoridad.
	if err := ctx.Err(); err != nil {
		c.log.Warn().Err(err).Msg("recarga de catálogo cancelada, se descarta")
		return err
	}

	var version int64 = 1
	if prev := c.current.Load(); prev != nil {
		version = prev.version + 1
	}
	c.current.Store(&snapshot{
		version:     version,
		loadedAt:    c.now(),
		products:    products,
		index:       index,
		batches:     batches,
		rowErrors:   rowErrs,
		batchErrors: batchErrs,
	})

	ev := c.log.Info()
	if len(rowErrs) > 0 || len(batchErrs) > 0 {
		ev = c.log.Warn()
	}
	ev.Int64("version", version).
		Int("products", len(products)).
		Int("row_errors", len(rowErrs)).
		Int("batch_errors", len(batchErrs)).
		Dur("elapsed", c.now().Sub(start)).
		Msg("catálogo publicado")
	return nil
}

func (c *Cache) readFailed(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.log.Error().Err(err).Str("source", what).Msg("no se pudo leer la fuente; se conserva el catálogo anterior")
	return &LoadError{Err: err}
}

// View es una lectura fija de un snapshot publicado: todas sus consultas ven la misma versión
// aunque entre medio ocurra un Refresh.
type View struct {
	snap *snapshot
}

// View devuelve el snapshot vigente, cargándolo si es el primer acceso.
func (c *Cache) View(ctx context.Context) (*View, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return &View{snap: snap}, nil
}

// Version versión del snapshot leído.
func (v *View) Version() int64 { return v.snap.version }

// List devuelve la página pedida y el total de productos. page y pageSize menores a 1 se toman como 1.
func (v *View) List(page, pageSize int) ([]entity.Product, int) {
	page = max(page, 1)
	pageSize = max(pageSize, 1)
	total := len(v.snap.products)
	start := min((page-1)*pageSize, total)
	end := min(page*pageSize, total)

	items := make([]entity.Product, 0, end-start)
	for _, p := range v.snap.products[start:end] {
		items = append(items, cloneProduct(p))
	}
	return items, total
}

// All devuelve una copia de todos los productos en el orden de la fuente.
func (v *View) All() []entity.Product {
	items := make([]entity.Product, 0, len(v.snap.products))
	for _, p := range v.snap.products {
		items = append(items, cloneProduct(p))
	}
	return items
}

// Get obtiene un producto por ID; nil si no existe.
func (v *View) Get(id string) *entity.Product {
	i, ok := v.snap.index[id]
	if !ok {
		return nil
	}
	p := cloneProduct(v.snap.products[i])
	return &p
}

// Batches lista los lotes de un producto.
func (v *View) Batches(productID string) []entity.ProductBatch {
	list := v.snap.batches[productID]
	out := make([]entity.ProductBatch, 0, len(list))
	for _, b := range list {
		out = append(out, cloneBatch(b))
	}
	return out
}

// Batch obtiene un lote de un producto; nil si no existe.
func (v *View) Batch(productID, batchID string) *entity.ProductBatch {
	for _, b := range v.snap.batches[productID] {
		if b.ID == batchID {
			out := cloneBatch(b)
			return &out
		}
	}
	return nil
}

// Status describe el snapshot publicado sin disparar la carga.
func (c *Cache) Status() Status {
	snap := c.current.Load()
	if snap == nil {
		return Status{}
	}
	return Status{
		Loaded:      true,
		Version:     snap.version,
		LoadedAt:    snap.loadedAt,
		Products:    len(snap.products),
		RowErrors:   slices.Clone(snap.rowErrors),
		BatchErrors: slices.Clone(snap.batchErrors),
	}
}

func cloneProduct(p entity.Product) entity.Product {
	p.Attributes = maps.Clone(p.Attributes)
	return p
}

func cloneBatch(b entity.ProductBatch) entity.ProductBatch {
	b.Attributes = maps.Clone(b.Attributes)
	if b.ExpiresAt != nil {
		exp := *b.ExpiresAt
		b.ExpiresAt = &exp
	}
	return b
}
