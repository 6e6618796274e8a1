package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/farmacia-pos/internal/application/dto"
	"github.com/jhoicas/farmacia-pos/internal/application/inventory"
)

// ProductHandler consultas de catálogo con stock (protegido).
type ProductHandler struct {
	svc *inventory.Service
}

// NewProductHandler construye el handler.
func NewProductHandler(svc *inventory.Service) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List godoc
// @Summary      Listar productos con stock
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        page       query  int  false  "Página (1-based)"  default(1)
// @Param        page_size  query  int  false  "Tamaño de página"  default(20)
// @Success      200  {object}  dto.ProductListResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/products [get]
func (h *ProductHandler) List(c *fiber.Ctx) error {
	var q dto.PageRequest
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros de página inválidos"})
	}
	q.DefaultPage()
	if q.PageSize > 200 {
		q.PageSize = 200
	}
	out, err := h.svc.ListProducts(c.Context(), q.Page, q.PageSize)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Obtener producto por ID
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.ProductView
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id} [get]
func (h *ProductHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	out, err := h.svc.GetProduct(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if out == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "producto no encontrado"})
	}
	return c.JSON(out)
}

// Stock godoc
// @Summary      Stock actual de un producto (o de uno de sus lotes)
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id        path   string  true   "ID del producto"
// @Param        batch_id  query  string  false  "ID del lote"
// @Success      200  {object}  dto.StockResponse
// @Router       /api/products/{id}/stock [get]
func (h *ProductHandler) Stock(c *fiber.Ctx) error {
	id := c.Params("id")
	batchID := c.Query("batch_id")
	return c.JSON(dto.StockResponse{
		ProductID: id,
		BatchID:   batchID,
		Quantity:  h.svc.CurrentStock(c.Context(), id, batchID),
	})
}

// Transactions godoc
// @Summary      Historial de movimientos del producto
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {array}   dto.StockTransactionResponse
// @Router       /api/products/{id}/transactions [get]
func (h *ProductHandler) Transactions(c *fiber.Ctx) error {
	txs, err := h.svc.History(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.StockTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, dto.FromTransaction(tx))
	}
	return c.JSON(out)
}
