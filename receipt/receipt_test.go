package receipt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier/cashbox/ledger"
	"github.com/atelier/cashbox/receipt"
)

func testDetails() ledger.TransferDetails {
	return ledger.TransferDetails{
		Origin:      "front",
		Destination: "back",
		Amount:      decimal.RequireFromString("400.00"),
		Orders: []ledger.Order{
			{
				ID:        "ord-400",
				Register:  "back",
				Amount:    decimal.RequireFromString("400.00"),
				State:     ledger.OrderCompleted,
				CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			},
		},
		Reference:   "ref-abc",
		Notes:       "end of shift",
		Actor:       "tester",
		CompletedAt: time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC),
	}
}

func TestRender_ContainsTransferFacts(t *testing.T) {
	out, err := receipt.NewGenerator().Render(testDetails())
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "CASH TRANSFER RECEIPT")
	assert.Contains(t, text, "Reference:   ref-abc")
	assert.Contains(t, text, "From:        front")
	assert.Contains(t, text, "To:          back")
	assert.Contains(t, text, "Amount:      400.00")
	assert.Contains(t, text, "Operator:    tester")
	assert.Contains(t, text, "Notes:       end of shift")
	assert.Contains(t, text, "Orders moved (1):")
	assert.Contains(t, text, "ord-400  2026-03-01  400.00")
}

func TestRender_OmitsEmptyNotes(t *testing.T) {
	details := testDetails()
	details.Notes = ""

	out, err := receipt.NewGenerator().Render(details)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Notes:")
}

func TestRender_OneLinePerOrder(t *testing.T) {
	details := testDetails()
	details.Orders = append(details.Orders, ledger.Order{
		ID:        "ord-600",
		Amount:    decimal.RequireFromString("600.00"),
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	details.Amount = decimal.RequireFromString("1000.00")

	out, err := receipt.NewGenerator().Render(details)
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "Orders moved (2):")
	assert.Equal(t, 1, strings.Count(text, "ord-400"))
	assert.Equal(t, 1, strings.Count(text, "ord-600"))
}
