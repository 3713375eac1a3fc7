// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService *order.Service
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *order.Service) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CancelOrderRequest represents a customer cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// UpdateStatusRequest represents an admin status change
type UpdateStatusRequest struct {
	Status         order.OrderStatus `json:"status" binding:"required"`
	Reason         string            `json:"reason" binding:"max=500"`
	TrackingNumber string            `json:"tracking_number" binding:"max=100"`
	Metadata       map[string]any    `json:"metadata"`
}

// GetOrders handles GET /orders
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	orders, err := h.orderService.GetUserOrders(c.Request.Context(), userID, queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondOwnedOrder(c, o)
}

// GetOrderByReference handles GET /orders/reference/:reference
func (h *OrderHandler) GetOrderByReference(c *gin.Context) {
	o, err := h.orderService.GetOrderByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondOwnedOrder(c, o)
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	cancelled, err := h.orderService.CancelOrderForUser(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
		"data":    cancelled,
	})
}

// GetAllOrders handles GET /admin/orders
func (h *OrderHandler) GetAllOrders(c *gin.Context) {
	var req order.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	orders, err := h.orderService.GetOrders(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

// UpdateOrderStatus handles POST /admin/orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !req.Status.IsValid() {
		respondError(c, apperror.New(apperror.CodeValidation, "unknown status %q", req.Status))
		return
	}

	adminID, _ := middleware.GetUserIDFromContext(c)
	change := order.Change{
		ActorType: order.ActorAdmin,
		ActorID:   &adminID,
		Reason:    req.Reason,
		Metadata:  req.Metadata,
	}

	ctx := c.Request.Context()
	var (
		updated *order.Order
		err     error
	)
	switch req.Status {
	case order.OrderStatusShipped:
		updated, err = h.orderService.MarkAsShipped(ctx, orderID, req.TrackingNumber, change)
	case order.OrderStatusCancelled:
		updated, err = h.orderService.CancelOrder(ctx, orderID, change)
	case order.OrderStatusRefunded:
		updated, err = h.orderService.RefundOrder(ctx, orderID, change)
	default:
		updated, err = h.orderService.ChangeStatus(ctx, orderID, req.Status, change)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data":    updated,
	})
}

// respondOwnedOrder writes the order when the caller owns it or is an admin
func (h *OrderHandler) respondOwnedOrder(c *gin.Context, o *order.Order) {
	userID, _ := middleware.GetUserIDFromContext(c)
	if !o.IsOwnedBy(userID) && !middleware.IsAdminFromContext(c) {
		respondError(c, apperror.ErrAccessDenied)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}
