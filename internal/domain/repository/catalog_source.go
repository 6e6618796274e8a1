package repository

import "context"

// CatalogSource entrega el catálogo crudo (CSV) bajo demanda.
type CatalogSource interface {
	Read(ctx context.Context) ([]byte, error)
}

// BatchSource lo implementan las fuentes que además publican lotes.
type BatchSource interface {
	ReadBatches(ctx context.Context) ([]byte, error)
}
