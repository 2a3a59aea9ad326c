package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateQuantity(t *testing.T) {
	filters := btcFilters()

	tests := []struct {
		name   string
		qty    string
		ok     bool
		reason string
	}{
		{name: "on step", qty: "0.005", ok: true},
		{name: "minimum", qty: "0.001", ok: true},
		{name: "maximum", qty: "1000", ok: true},
		{name: "off step", qty: "0.0025", reason: "not a multiple of step 0.001"},
		{name: "below minimum", qty: "0.0005", reason: "outside [0.001, 1000]"},
		{name: "above maximum", qty: "1000.001", reason: "outside [0.001, 1000]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidateQuantity(filters, dec(tt.qty))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Empty(t, reason)
			} else {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}

func TestValidateQuantity_StepCountedFromMinimum(t *testing.T) {
	filters := btcFilters()
	filters.LotSize.MinQty = dec("0.0015")

	ok, _ := ValidateQuantity(filters, dec("0.0025"))
	assert.True(t, ok)

	ok, _ = ValidateQuantity(filters, dec("0.002"))
	assert.False(t, ok)
}

func TestValidateQuantity_ZeroStep(t *testing.T) {
	filters := btcFilters()
	filters.LotSize.StepSize = dec("0")

	ok, reason := ValidateQuantity(filters, dec("0.0012345"))
	assert.True(t, ok, reason)
}

func TestValidatePrice(t *testing.T) {
	filters := btcFilters()

	tests := []struct {
		name   string
		price  string
		ok     bool
		reason string
	}{
		{name: "on tick", price: "100.00", ok: true},
		{name: "off tick", price: "100.005", reason: "not aligned to tick 0.01"},
		{name: "below minimum", price: "0.001", reason: "outside"},
		{name: "above maximum", price: "1000000.01", reason: "outside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidatePrice(filters, dec(tt.price))
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}

func TestValidatePrice_NoUpperBound(t *testing.T) {
	filters := btcFilters()
	filters.PriceFilter.MaxPrice = dec("0")

	ok, reason := ValidatePrice(filters, dec("5000000.25"))
	assert.True(t, ok, reason)
}
