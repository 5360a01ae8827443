package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/atelier/cashbox/ledger"
)

func amounts(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestSelectExactPrefix(t *testing.T) {
	tests := []struct {
		name    string
		amounts []decimal.Decimal
		target  string
		wantN   int
		wantOK  bool
	}{
		{
			name:    "first order matches exactly",
			amounts: amounts("400.00", "600.00"),
			target:  "400.00",
			wantN:   1,
			wantOK:  true,
		},
		{
			name:    "full prefix matches exactly",
			amounts: amounts("400.00", "600.00"),
			target:  "1000.00",
			wantN:   2,
			wantOK:  true,
		},
		{
			name:    "overshoot mid-scan fails even though total exceeds target",
			amounts: amounts("400.00", "600.00"),
			target:  "500.00",
			wantOK:  false,
		},
		{
			name:    "overshoot on first order",
			amounts: amounts("750.00"),
			target:  "200.00",
			wantOK:  false,
		},
		{
			name:    "orders exhausted below target",
			amounts: amounts("100.00", "50.00"),
			target:  "200.00",
			wantOK:  false,
		},
		{
			name:    "no orders",
			amounts: nil,
			target:  "10.00",
			wantOK:  false,
		},
		{
			name:    "exact at last order with cents",
			amounts: amounts("19.99", "0.01", "5.00"),
			target:  "25.00",
			wantN:   3,
			wantOK:  true,
		},
		{
			name:    "zero target never matches",
			amounts: amounts("10.00"),
			target:  "0",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := ledger.SelectExactPrefix(tt.amounts, decimal.RequireFromString(tt.target))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantN, n)
			}
		})
	}
}

func TestSelectExactPrefix_StopsAtFirstMatch(t *testing.T) {
	// A later, longer prefix also summing to the target must not be
	// preferred: the shortest matching prefix clears the oldest orders.
	n, ok := ledger.SelectExactPrefix(amounts("100.00", "0.00"), decimal.RequireFromString("100.00"))
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestPrefixAmounts_PreservesOrder(t *testing.T) {
	now := time.Now()
	orders := []ledger.Order{
		{ID: "a", Amount: decimal.RequireFromString("1.00"), CreatedAt: now},
		{ID: "b", Amount: decimal.RequireFromString("2.00"), CreatedAt: now.Add(time.Minute)},
	}
	got := ledger.PrefixAmounts(orders)
	assert.Len(t, got, 2)
	assert.True(t, got[0].Equal(decimal.RequireFromString("1.00")))
	assert.True(t, got[1].Equal(decimal.RequireFromString("2.00")))
}
