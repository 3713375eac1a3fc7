// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
)

// ProductHandler handles catalog endpoints
type ProductHandler struct {
	productService *product.Service
	resolver       *cartResolver
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService *product.Service, cartService *cart.Service, userService *user.Service, cfg *config.Config) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		resolver:       &cartResolver{carts: cartService, users: userService, config: cfg},
	}
}

// PriceQuote is the price a caller would pay for a quantity of a variant
type PriceQuote struct {
	VariantID    uint                `json:"variant_id"`
	Currency     string              `json:"currency"`
	CustomerType product.CustomerType `json:"customer_type"`
	Quantity     int                 `json:"quantity"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	LineTotal    decimal.Decimal     `json:"line_total"`
	Savings      decimal.NullDecimal `json:"savings"`
	Available    bool                `json:"available"`
}

// GetVariant handles GET /variants/:id
func (h *ProductHandler) GetVariant(c *gin.Context) {
	variantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	variant, err := h.productService.GetVariant(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if variant.IsDeleted() {
		respondError(c, apperror.NotFound("variant", variantID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Variant retrieved successfully",
		"data":    variant,
	})
}

// QuotePrice handles GET /variants/:id/price?quantity=N. Currency and customer
// type follow the caller's cart context.
func (h *ProductHandler) QuotePrice(c *gin.Context) {
	variantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	quantity := queryInt(c, "quantity", 1)
	if quantity < 1 {
		respondError(c, apperror.ErrInvalidQuantity)
		return
	}

	cc, err := h.resolver.cartContext(c)
	if err != nil {
		respondError(c, err)
		return
	}

	variant, err := h.productService.GetVariant(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !variant.IsAvailable() {
		respondError(c, apperror.ErrVariantUnavailable)
		return
	}

	unit, ok := variant.PriceFor(cc.Currency, cc.CustomerType, quantity)
	if !ok {
		respondError(c, apperror.ErrPriceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Price quoted successfully",
		"data": PriceQuote{
			VariantID:    variant.ID,
			Currency:     cc.Currency,
			CustomerType: cc.CustomerType,
			Quantity:     quantity,
			UnitPrice:    unit,
			LineTotal:    unit.Mul(decimal.NewFromInt(int64(quantity))),
			Savings:      variant.SavingsFor(cc.Currency, cc.CustomerType, quantity),
			Available:    variant.IsOrderable(quantity),
		},
	})
}
