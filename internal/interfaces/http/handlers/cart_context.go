// internal/interfaces/http/handlers/cart_context.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// Request headers and cookie identifying the shopper's cart
const (
	CartTokenHeader = "X-Cart-Token"
	CartTokenCookie = "cart_token"
	SiteHeader      = "X-Site-ID"
	CurrencyHeader  = "X-Currency"
	LocaleHeader    = "X-Locale"

	defaultCurrency = "EUR"
	defaultLocale   = "en"
)

// cartResolver finds the cart of the caller: the user's cart when a token
// authenticated the request, the guest cart named by the cart token otherwise
type cartResolver struct {
	carts  *cart.Service
	users  *user.Service
	config *config.Config
}

func (r *cartResolver) siteID(c *gin.Context) uint {
	if id, err := strconv.ParseUint(c.GetHeader(SiteHeader), 10, 32); err == nil && id > 0 {
		return uint(id)
	}
	return r.config.App.DefaultSite
}

func guestToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(CartTokenHeader)); token != "" {
		return token
	}
	token, _ := c.Cookie(CartTokenCookie)
	return strings.TrimSpace(token)
}

// owner returns the cart owner of the request. The zero owner means an
// anonymous caller without a cart yet.
func (r *cartResolver) owner(c *gin.Context) cart.Owner {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return cart.UserOwner(userID)
	}
	return cart.GuestOwner(guestToken(c))
}

func (r *cartResolver) cartContext(c *gin.Context) (cart.CartContext, error) {
	cc := cart.CartContext{
		SiteID:       r.siteID(c),
		Owner:        r.owner(c),
		Currency:     strings.ToUpper(strings.TrimSpace(c.GetHeader(CurrencyHeader))),
		CustomerType: product.CustomerTypeB2C,
		Locale:       strings.TrimSpace(c.GetHeader(LocaleHeader)),
	}
	if cc.Currency == "" {
		cc.Currency = defaultCurrency
	}
	if cc.Locale == "" {
		cc.Locale = localeFromAcceptLanguage(c.GetHeader("Accept-Language"))
	}

	if userID, ok := cc.Owner.UserID(); ok {
		u, err := r.users.GetProfile(c.Request.Context(), userID)
		if err != nil {
			return cc, err
		}
		cc.CustomerType = u.CustomerType
	}
	return cc, nil
}

// current returns the caller's live cart, creating one on first use. A new
// guest cart hands its token back to the client.
func (r *cartResolver) current(c *gin.Context) (*cart.Cart, error) {
	cc, err := r.cartContext(c)
	if err != nil {
		return nil, err
	}

	ct, err := r.carts.GetOrCreate(c.Request.Context(), cc)
	if err != nil {
		return nil, err
	}

	if token, ok := ct.Owner.GuestToken(); ok {
		r.setGuestToken(c, token)
	}
	return ct, nil
}

// existing returns the caller's live cart without creating one
func (r *cartResolver) existing(c *gin.Context) (*cart.Cart, error) {
	return r.carts.FindForOwner(c.Request.Context(), r.siteID(c), r.owner(c))
}

func (r *cartResolver) setGuestToken(c *gin.Context, token string) {
	c.Header(CartTokenHeader, token)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CartTokenCookie, token, int(cart.GuestCartLifetime.Seconds()), "/", "", r.config.IsProduction(), true)
}

func (r *cartResolver) clearGuestToken(c *gin.Context) {
	c.SetCookie(CartTokenCookie, "", -1, "/", "", r.config.IsProduction(), true)
}

func localeFromAcceptLanguage(header string) string {
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" || len(tag) > 10 {
		return defaultLocale
	}
	return tag
}
