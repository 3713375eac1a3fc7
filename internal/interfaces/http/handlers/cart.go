// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService *cart.Service
	resolver    *cartResolver
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service, userService *user.Service, cfg *config.Config) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		resolver:    &cartResolver{carts: cartService, users: userService, config: cfg},
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	ct, err := h.resolver.current(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    ct.Summary(h.cartService.Now()),
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req cart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, err := h.resolver.current(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.cartService.AddItem(c.Request.Context(), ct.ID, req.VariantID, req.Quantity, req.CustomMessage); err != nil {
		respondError(c, err)
		return
	}

	h.respondWithCart(c, http.StatusCreated, "Item added to cart successfully", ct)
}

// UpdateCartItem handles PUT /cart/items/:id
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req cart.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.cartService.UpdateItemQuantity(c.Request.Context(), ct.ID, itemID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	h.respondWithCart(c, http.StatusOK, "Cart item updated successfully", ct)
}

// RemoveFromCart handles DELETE /cart/items/:id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.cartService.RemoveItem(c.Request.Context(), ct.ID, itemID); err != nil {
		respondError(c, err)
		return
	}

	h.respondWithCart(c, http.StatusOK, "Item removed from cart successfully", ct)
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.cartService.Clear(c.Request.Context(), ct.ID); err != nil {
		respondError(c, err)
		return
	}

	h.respondWithCart(c, http.StatusOK, "Cart cleared successfully", ct)
}

// ApplyCoupon handles POST /cart/coupon
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var req cart.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.cartService.ApplyCoupon(c.Request.Context(), ct.ID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon applied successfully",
		"data":    updated.Summary(h.cartService.Now()),
	})
}

// RemoveCoupon handles DELETE /cart/coupon
func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	ct, err := h.resolver.existing(c)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.cartService.RemoveCoupon(c.Request.Context(), ct.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon removed successfully",
		"data":    updated.Summary(h.cartService.Now()),
	})
}

// MergeCart handles POST /cart/merge. The guest cart named by the cart token
// is folded into the authenticated user's cart.
func (h *CartHandler) MergeCart(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	if _, err := h.cartService.MergeGuestCart(c.Request.Context(), h.resolver.siteID(c), guestToken(c), userID); err != nil {
		respondError(c, err)
		return
	}
	h.resolver.clearGuestToken(c)

	ct, err := h.resolver.current(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart merged successfully",
		"data":    ct.Summary(h.cartService.Now()),
	})
}

func (h *CartHandler) respondWithCart(c *gin.Context, status int, message string, ct *cart.Cart) {
	updated, err := h.cartService.Get(c.Request.Context(), ct.ID, ct.Owner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(status, gin.H{
		"message": message,
		"data":    updated.Summary(h.cartService.Now()),
	})
}
