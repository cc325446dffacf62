package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotal(t *testing.T) {
	for _, tt := range []struct {
		name     string
		quantity int
		price    string
		discount string
		want     string
	}{
		{name: "NoDiscount", quantity: 2, price: "19.99", discount: "0", want: "39.98"},
		{name: "TenPercent", quantity: 3, price: "100.00", discount: "10", want: "270.00"},
		{name: "Free", quantity: 5, price: "12.50", discount: "100", want: "0"},
		{name: "RoundsToCents", quantity: 1, price: "10.00", discount: "33.33", want: "6.67"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := Total(tt.quantity, decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.discount))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestValidDiscount(t *testing.T) {
	assert.True(t, ValidDiscount(decimal.Zero))
	assert.True(t, ValidDiscount(decimal.NewFromInt(100)))
	assert.True(t, ValidDiscount(decimal.RequireFromString("12.5")))
	assert.True(t, ValidDiscount(decimal.RequireFromString("10.550")))
	assert.False(t, ValidDiscount(decimal.NewFromInt(-1)))
	assert.False(t, ValidDiscount(decimal.RequireFromString("100.01")))
	assert.False(t, ValidDiscount(decimal.RequireFromString("10.555")))
}
