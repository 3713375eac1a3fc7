package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{"open ended", Coupon{IsActive: true}, true},
		{"inside window", Coupon{IsActive: true, ValidFrom: timePtr(now.Add(-time.Hour)), ValidUntil: timePtr(now.Add(time.Hour))}, true},
		{"not started", Coupon{IsActive: true, ValidFrom: timePtr(now.Add(time.Second))}, false},
		{"expired", Coupon{IsActive: true, ValidUntil: timePtr(now.Add(-time.Second))}, false},
		{"exhausted", Coupon{IsActive: true, MaxUsages: intPtr(5), UsageCount: 5}, false},
		{"one use left", Coupon{IsActive: true, MaxUsages: intPtr(5), UsageCount: 4}, true},
		{"inactive", Coupon{IsActive: false}, false},
		{"soft deleted", Coupon{IsActive: true, DeletedAt: gorm.DeletedAt{Time: now, Valid: true}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.IsValid(now))
		})
	}
}

func TestCanUserUse(t *testing.T) {
	unlimited := Coupon{}
	assert.True(t, unlimited.CanUserUse(100))

	once := Coupon{MaxUsagesPerUser: intPtr(1)}
	assert.True(t, once.CanUserUse(0))
	assert.False(t, once.CanUserUse(1))
}

func TestIsApplicableToCustomerType(t *testing.T) {
	everyone := Coupon{}
	assert.True(t, everyone.IsApplicableToCustomerType(product.CustomerTypeB2B))

	b2bOnly := Coupon{AllowedCustomerTypes: []product.CustomerType{product.CustomerTypeB2B}}
	assert.True(t, b2bOnly.IsApplicableToCustomerType(product.CustomerTypeB2B))
	assert.False(t, b2bOnly.IsApplicableToCustomerType(product.CustomerTypeB2C))
}

func TestDiscountFor(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal string
		want     string
	}{
		{
			name:     "percentage capped by maximum discount",
			coupon:   Coupon{Type: TypePercentage, Value: dec("0.10"), MaximumDiscount: decimal.NewNullDecimal(dec("3.00"))},
			subtotal: "50.00",
			want:     "3.00",
		},
		{
			name:     "percentage below cap",
			coupon:   Coupon{Type: TypePercentage, Value: dec("0.10"), MaximumDiscount: decimal.NewNullDecimal(dec("30.00"))},
			subtotal: "50.00",
			want:     "5.00",
		},
		{
			name:     "percentage above one hundred percent never exceeds subtotal",
			coupon:   Coupon{Type: TypePercentage, Value: dec("1.50")},
			subtotal: "40.00",
			want:     "40.00",
		},
		{
			name:     "fixed amount",
			coupon:   Coupon{Type: TypeFixedAmount, Value: dec("15.00")},
			subtotal: "40.00",
			want:     "15.00",
		},
		{
			name:     "fixed amount larger than subtotal",
			coupon:   Coupon{Type: TypeFixedAmount, Value: dec("100.00")},
			subtotal: "40.00",
			want:     "40.00",
		},
		{
			name:     "minimum not met",
			coupon:   Coupon{Type: TypeFixedAmount, Value: dec("10.00"), MinimumAmount: decimal.NewNullDecimal(dec("60.00"))},
			subtotal: "59.99",
			want:     "0",
		},
		{
			name:     "minimum met exactly",
			coupon:   Coupon{Type: TypeFixedAmount, Value: dec("10.00"), MinimumAmount: decimal.NewNullDecimal(dec("60.00"))},
			subtotal: "60.00",
			want:     "10.00",
		},
		{
			name:     "free shipping contributes nothing",
			coupon:   Coupon{Type: TypeFreeShipping, Value: dec("99")},
			subtotal: "40.00",
			want:     "0",
		},
		{
			name:     "empty subtotal",
			coupon:   Coupon{Type: TypeFixedAmount, Value: dec("5.00")},
			subtotal: "0",
			want:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.DiscountFor(dec(tt.subtotal))
			assert.Truef(t, dec(tt.want).Equal(got), "got %s want %s", got, tt.want)
			assert.True(t, got.LessThanOrEqual(dec(tt.subtotal)))
		})
	}
}

func TestGrantsFreeShipping(t *testing.T) {
	assert.True(t, (&Coupon{Type: TypeFreeShipping}).GrantsFreeShipping())
	assert.False(t, (&Coupon{Type: TypePercentage}).GrantsFreeShipping())
}
