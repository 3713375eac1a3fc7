// internal/domain/product/pricing.go
package product

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Flat builds a flat price entry
func Flat(price decimal.Decimal) PriceEntry {
	return PriceEntry{Price: &price}
}

// Tiered builds a tiered price entry. Tiers are kept sorted by minimum quantity.
func Tiered(tiers ...PriceTier) PriceEntry {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b PriceTier) int { return cmp.Compare(a.MinQuantity, b.MinQuantity) })
	return PriceEntry{Tiers: sorted}
}

// Set stores an entry for the currency and customer type
func (t PriceTable) Set(currency string, customerType CustomerType, entry PriceEntry) PriceTable {
	if t == nil {
		t = PriceTable{}
	}
	if t[currency] == nil {
		t[currency] = map[CustomerType]PriceEntry{}
	}
	t[currency][customerType] = entry
	return t
}

// Entry looks up the entry for the currency and customer type
func (t PriceTable) Entry(currency string, customerType CustomerType) (PriceEntry, bool) {
	byType, ok := t[currency]
	if !ok {
		return PriceEntry{}, false
	}
	entry, ok := byType[customerType]
	if !ok || (entry.Price == nil && len(entry.Tiers) == 0) {
		return PriceEntry{}, false
	}
	return entry, true
}

// IsTiered reports whether the entry is a tiered price list
func (e PriceEntry) IsTiered() bool {
	return e.Price == nil && len(e.Tiers) > 0
}

// applicableTier returns the index of the highest tier whose minimum quantity
// is reached. Quantities below the first breakpoint use the first tier.
func (e PriceEntry) applicableTier(quantity int) int {
	tiers := e.sortedTiers()
	idx := 0
	for i, tier := range tiers {
		if tier.MinQuantity <= quantity {
			idx = i
		}
	}
	return idx
}

func (e PriceEntry) sortedTiers() []PriceTier {
	if slices.IsSortedFunc(e.Tiers, func(a, b PriceTier) int { return cmp.Compare(a.MinQuantity, b.MinQuantity) }) {
		return e.Tiers
	}
	return Tiered(e.Tiers...).Tiers
}

// UnitPrice returns the unit price of the entry for a quantity
func (e PriceEntry) UnitPrice(quantity int) decimal.Decimal {
	if e.Price != nil {
		return *e.Price
	}
	return e.sortedTiers()[e.applicableTier(quantity)].Price
}

// Savings returns the tier discount for a quantity, or false when the first
// tier (or a flat price) applies.
func (e PriceEntry) Savings(quantity int) (decimal.Decimal, bool) {
	if !e.IsTiered() {
		return decimal.Zero, false
	}
	idx := e.applicableTier(quantity)
	if idx == 0 {
		return decimal.Zero, false
	}
	tiers := e.sortedTiers()
	perUnit := tiers[0].Price.Sub(tiers[idx].Price)
	return perUnit.Mul(decimal.NewFromInt(int64(quantity))), true
}

// PriceFor returns the unit price for the currency, customer type and
// quantity. ok is false when the variant cannot be priced in that context.
func (v *Variant) PriceFor(currency string, customerType CustomerType, quantity int) (decimal.Decimal, bool) {
	entry, ok := v.Prices.Entry(currency, customerType)
	if !ok {
		return decimal.Zero, false
	}
	return entry.UnitPrice(quantity), true
}

// SavingsFor returns the total tier savings for the quantity. The result is
// null unless a tier beyond the first applies.
func (v *Variant) SavingsFor(currency string, customerType CustomerType, quantity int) decimal.NullDecimal {
	entry, ok := v.Prices.Entry(currency, customerType)
	if !ok {
		return decimal.NullDecimal{}
	}
	amount, ok := entry.Savings(quantity)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount)
}
