package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/farmacia-pos/internal/application/dto"
	"github.com/jhoicas/farmacia-pos/internal/application/inventory"
	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
	dominventory "github.com/jhoicas/farmacia-pos/internal/domain/inventory"
)

// InventoryHandler maneja ajustes de stock y verificación del libro (protegido).
type InventoryHandler struct {
	svc      *inventory.Service
	validate *validator.Validate
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(svc *inventory.Service) *InventoryHandler {
	return &InventoryHandler{svc: svc, validate: validator.New()}
}

// Adjust godoc
// @Summary      Registrar movimiento de stock
// @Description  Agrega un movimiento al libro. El usuario se toma del token.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustStockRequest  true  "product_id, delta, type; batch_id y referencias opcionales"
// @Success      201   {object}  dto.StockTransactionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/adjustments [post]
func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.AdjustStockRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	tx, err := h.svc.AdjustStock(c.Context(), inventory.AdjustStockInput{
		ProductID: in.ProductID,
		BatchID:   in.BatchID,
		Delta:     in.Delta,
		Type:      entity.TransactionType(in.Type),
		Reason:    in.Reason,
		References: entity.References{
			OrderID:             in.OrderID,
			ReturnID:            in.ReturnID,
			PurchaseOrderItemID: in.PurchaseOrderItemID,
		},
		UserID: userID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromTransaction(tx))
}

// LowStock godoc
// @Summary      Productos en o por debajo del punto de reorden
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   dto.ProductView
// @Router       /api/inventory/low-stock [get]
func (h *InventoryHandler) LowStock(c *fiber.Ctx) error {
	list, err := h.svc.LowStock(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []dto.ProductView{}
	}
	return c.JSON(fiber.Map{
		"total": len(list),
		"items": list,
	})
}

// Verify godoc
// @Summary      Verificar la proyección contra el libro
// @Description  Repite el libro hasta el último movimiento proyectado y compara. No corrige diferencias.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.VerifyResponse
// @Failure      409  {object}  dto.VerifyResponse
// @Router       /api/inventory/verify [post]
func (h *InventoryHandler) Verify(c *fiber.Ctx) error {
	n, err := h.svc.Verify(c.Context())
	var mismatch *dominventory.ReplayMismatchError
	switch {
	case err == nil:
		return c.JSON(dto.VerifyResponse{Consistent: true, Transactions: n})
	case errors.As(err, &mismatch):
		out := dto.VerifyResponse{Transactions: n}
		for _, m := range mismatch.Mismatches {
			out.Mismatches = append(out.Mismatches, dto.MismatchItem{
				ProductID: m.Key.ProductID,
				BatchID:   m.Key.BatchID,
				Projected: m.Projected,
				Replayed:  m.Replayed,
			})
		}
		return c.Status(fiber.StatusConflict).JSON(out)
	}
	return writeError(c, err)
}
