// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
	resolver        *cartResolver
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service, cartService *cart.Service, userService *user.Service, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		resolver:        &cartResolver{carts: cartService, users: userService, config: cfg},
	}
}

// ValidateCheckout handles GET /checkout/validate
func (h *CheckoutHandler) ValidateCheckout(c *gin.Context) {
	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, emptyCartIfMissing(err))
		return
	}

	validation, err := h.checkoutService.Validate(c.Request.Context(), ct.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout validated",
		"data":    validation,
	})
}

// Checkout handles POST /checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, emptyCartIfMissing(err))
		return
	}

	createdOrder, err := h.checkoutService.CreateFromCart(c.Request.Context(), ct.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data":    createdOrder,
	})
}

// A caller without a live cart has nothing to check out
func emptyCartIfMissing(err error) error {
	if apperror.CodeOf(err) == apperror.CodeNotFound {
		return apperror.ErrEmptyCart
	}
	return err
}
