package catalogsource

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/jhoicas/farmacia-pos/internal/domain/repository"
)

var (
	_ repository.CatalogSource = (*FileSource)(nil)
	_ repository.BatchSource   = (*FileSource)(nil)
)

// FileSource lee el catálogo (y opcionalmente los lotes) desde archivos CSV.
type FileSource struct {
	fs          afero.Fs
	path        string
	batchesPath string
}

// NewFileSource construye la fuente. batchesPath vacío = sin archivo de lotes.
func NewFileSource(fs afero.Fs, path, batchesPath string) *FileSource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileSource{fs: fs, path: path, batchesPath: batchesPath}
}

// Read devuelve el contenido del archivo de productos.
func (s *FileSource) Read(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.path)
}

// ReadBatches devuelve el archivo de lotes, o nil si no está configurado.
func (s *FileSource) ReadBatches(ctx context.Context) ([]byte, error) {
	if s.batchesPath == "" {
		return nil, nil
	}
	return s.read(ctx, s.batchesPath)
}

func (s *FileSource) read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("leer %s: %w", path, err)
	}
	return data, nil
}

// Static fuente en memoria (arranque sin archivo, tests).
type Static struct {
	Products []byte
	Batches  []byte
}

// Read devuelve los productos.
func (s Static) Read(ctx context.Context) ([]byte, error) {
	return s.Products, ctx.Err()
}

// ReadBatches devuelve los lotes.
func (s Static) ReadBatches(ctx context.Context) ([]byte, error) {
	return s.Batches, ctx.Err()
}
