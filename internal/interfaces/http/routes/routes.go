// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/domain/wishlist"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Dependencies carries what the route handlers are built from
type Dependencies struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *logrus.Logger
	Notifier order.Notifier
	JWT      *auth.JWTManager
}

// SetupRoutes wires services and handlers onto the /api/v1 group
func SetupRoutes(rg *gin.RouterGroup, deps Dependencies) {
	cfg := deps.Config
	if deps.JWT == nil {
		deps.JWT = auth.NewJWTManager(cfg)
	}
	if deps.Notifier == nil {
		deps.Notifier = order.NewLogNotifier(deps.Logger)
	}

	couponService := coupon.NewService(deps.DB)
	userService := user.NewService(deps.DB)
	productService := product.NewService(deps.DB)
	ledger := inventory.NewLedger(deps.DB, deps.Logger)
	cartService := cart.NewService(deps.DB, couponService, deps.Logger)
	checkoutService := checkout.NewService(deps.DB, couponService, deps.Logger)
	orderService := order.NewService(deps.DB, ledger, deps.Notifier, deps.Logger)
	wishlistService := wishlist.NewService(deps.DB, cartService, deps.Logger)

	optionalAuth := middleware.OptionalAuthMiddleware(deps.JWT)
	requireAuth := middleware.AuthMiddleware(deps.JWT)

	// Catalog
	productHandler := handlers.NewProductHandler(productService, cartService, userService, cfg)
	variants := rg.Group("/variants")
	variants.Use(optionalAuth)
	{
		variants.GET("/:id", productHandler.GetVariant)
		variants.GET("/:id/price", productHandler.QuotePrice)
	}

	// Cart
	cartHandler := handlers.NewCartHandler(cartService, userService, cfg)
	carts := rg.Group("/cart")
	carts.Use(optionalAuth)
	{
		carts.GET("", cartHandler.GetCart)
		carts.DELETE("", cartHandler.ClearCart)
		carts.POST("/items", cartHandler.AddToCart)
		carts.PUT("/items/:id", cartHandler.UpdateCartItem)
		carts.DELETE("/items/:id", cartHandler.RemoveFromCart)
		carts.POST("/coupon", cartHandler.ApplyCoupon)
		carts.DELETE("/coupon", cartHandler.RemoveCoupon)
		carts.POST("/merge", requireAuth, cartHandler.MergeCart)
	}

	// Checkout
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cartService, userService, cfg)
	checkouts := rg.Group("/checkout")
	checkouts.Use(optionalAuth)
	{
		checkouts.GET("/validate", checkoutHandler.ValidateCheckout)
		checkouts.POST("", checkoutHandler.Checkout)
	}

	// Orders
	orderHandler := handlers.NewOrderHandler(orderService)
	orders := rg.Group("/orders")
	orders.Use(requireAuth)
	{
		orders.GET("", orderHandler.GetOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.GET("/reference/:reference", orderHandler.GetOrderByReference)
		orders.POST("/:id/cancel", orderHandler.CancelOrder)
	}

	// Wishlist
	wishlistHandler := handlers.NewWishlistHandler(wishlistService, cartService, userService, cfg)
	wishlists := rg.Group("/wishlist")
	wishlists.Use(requireAuth)
	{
		wishlists.GET("", wishlistHandler.GetWishlist)
		wishlists.GET("/count", wishlistHandler.GetWishlistCount)
		wishlists.POST("", wishlistHandler.AddToWishlist)
		wishlists.DELETE("/:id", wishlistHandler.RemoveFromWishlist)
		wishlists.POST("/:id/move-to-cart", wishlistHandler.MoveToCart)
	}

	// Admin
	inventoryHandler := handlers.NewInventoryHandler(ledger)
	admin := rg.Group("/admin")
	admin.Use(requireAuth, middleware.AdminMiddleware())
	{
		admin.GET("/orders", orderHandler.GetAllOrders)
		admin.GET("/orders/:id", orderHandler.GetOrder)
		admin.POST("/orders/:id/status", orderHandler.UpdateOrderStatus)

		admin.GET("/variants/:id/stock", inventoryHandler.GetStock)
		admin.POST("/variants/:id/stock", inventoryHandler.AdjustStock)
		admin.GET("/variants/:id/movements", inventoryHandler.GetMovements)
	}
}
