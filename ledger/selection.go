/*
selection.go - Exact-amount order selection for transfers

PURPOSE:
  A transfer moves value between registers by reassigning whole orders.
  The selected orders must sum exactly to the requested amount: splitting
  a single order across two registers is a hard business rule violation,
  not an approximation to tolerate.

ALGORITHM:
  Orders arrive oldest-first (deterministic: repeated identical requests
  pick the identical set, and older liabilities clear first). Accumulate
  greedily; the moment the running sum would pass the target without ever
  equaling it, the whole selection fails. Reaching the target exactly
  succeeds with the prefix accumulated so far.

  This is a pure function so it is unit-testable without a database.

SEE ALSO:
  - engine.go: TransferBetweenRegisters uses the selected prefix
*/
package ledger

import "github.com/shopspring/decimal"

// SelectExactPrefix returns the length of the shortest prefix of amounts
// whose sum equals target, and whether such a prefix exists. Amounts must be
// ordered oldest-first by the caller.
//
// The scan stops as soon as the running sum exceeds target: a later suffix
// can never bring it back down because order amounts are positive, and
// skipping orders is not allowed (selection is prefix-only so older orders
// are always cleared first).
func SelectExactPrefix(amounts []decimal.Decimal, target decimal.Decimal) (int, bool) {
	if target.Sign() <= 0 {
		return 0, false
	}

	sum := decimal.Zero
	for i, a := range amounts {
		sum = sum.Add(a)
		switch {
		case sum.Equal(target):
			return i + 1, true
		case sum.GreaterThan(target):
			return 0, false
		}
	}
	return 0, false
}

// PrefixAmounts extracts the amounts of an oldest-first order slice, in the
// same order, for use with SelectExactPrefix.
func PrefixAmounts(orders []Order) []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(orders))
	for i, o := range orders {
		amounts[i] = o.Amount
	}
	return amounts
}
