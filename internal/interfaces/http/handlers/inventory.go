// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// InventoryHandler handles admin stock endpoints
type InventoryHandler struct {
	ledger *inventory.Ledger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(ledger *inventory.Ledger) *InventoryHandler {
	return &InventoryHandler{
		ledger: ledger,
	}
}

// StockAdjustmentRequest represents a manual stock correction. A positive
// delta restocks, a negative one writes stock off.
type StockAdjustmentRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// GetStock handles GET /admin/variants/:id/stock
func (h *InventoryHandler) GetStock(c *gin.Context) {
	variantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	stock, err := h.ledger.Available(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock retrieved successfully",
		"data": gin.H{
			"variant_id": variantID,
			"stock":      stock,
		},
	})
}

// GetMovements handles GET /admin/variants/:id/movements
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	variantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.ledger.Available(c.Request.Context(), variantID); err != nil {
		respondError(c, err)
		return
	}

	movements, err := h.ledger.Movements(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// AdjustStock handles POST /admin/variants/:id/stock
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	variantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req StockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	ref := inventory.Reference{Type: "admin", ID: adminID}
	ctx := c.Request.Context()

	stock, err := h.ledger.Adjust(ctx, variantID, req.Delta, ref)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data": gin.H{
			"variant_id": variantID,
			"stock":      stock,
		},
	})
}
