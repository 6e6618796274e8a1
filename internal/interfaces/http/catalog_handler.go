package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/farmacia-pos/internal/application/catalog"
	"github.com/jhoicas/farmacia-pos/internal/application/dto"
	domcatalog "github.com/jhoicas/farmacia-pos/internal/domain/catalog"
)

// CatalogHandler recarga y estado del catálogo en memoria.
type CatalogHandler struct {
	cache *catalog.Cache
}

// NewCatalogHandler construye el handler.
func NewCatalogHandler(cache *catalog.Cache) *CatalogHandler {
	return &CatalogHandler{cache: cache}
}

// Refresh godoc
// @Summary      Recargar catálogo desde la fuente
// @Description  Si la lectura falla se conserva el catálogo anterior.
// @Tags         catalog
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.CatalogStatusResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/catalog/refresh [post]
func (h *CatalogHandler) Refresh(c *fiber.Ctx) error {
	if err := h.cache.Refresh(c.Context()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusResponse(h.cache.Status()))
}

// Status godoc
// @Summary      Estado del catálogo
// @Tags         catalog
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.CatalogStatusResponse
// @Router       /api/catalog/status [get]
func (h *CatalogHandler) Status(c *fiber.Ctx) error {
	return c.JSON(statusResponse(h.cache.Status()))
}

func statusResponse(st catalog.Status) dto.CatalogStatusResponse {
	return dto.CatalogStatusResponse{
		Loaded:      st.Loaded,
		Version:     st.Version,
		LoadedAt:    st.LoadedAt,
		Products:    st.Products,
		RowErrors:   rowErrorItems(st.RowErrors),
		BatchErrors: rowErrorItems(st.BatchErrors),
	}
}

func rowErrorItems(errs []domcatalog.RowError) []dto.RowErrorItem {
	out := make([]dto.RowErrorItem, 0, len(errs))
	for _, e := range errs {
		out = append(out, dto.RowErrorItem{Line: e.Line, Field: e.Field, Message: e.Message})
	}
	return out
}
