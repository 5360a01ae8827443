/*
balance.go - Balance derivation

PURPOSE:
  Computes a register's balance from current state. This is the single
  source of truth: there is no stored counter that can drift.

DERIVATION:
  balance(register) = Σ amount(order)           completed orders assigned
                    + Σ signed(movement.amount) manual movements

  Manual movements are deposits (+), withdrawals (−) and adjustments
  (sign per their declared direction). Transfer legs are excluded: a
  transfer moves value by reassigning orders, which the first term already
  reflects, and the paired transfer_in/transfer_out rows are the immutable
  record of that reassignment. Counting them too would double every
  transfer.

ISOLATION:
  ComputeBalance reads through the caller-supplied TxView so it observes
  uncommitted writes made earlier in the same transaction and is isolated
  from concurrent writers. Callers that will mutate based on the result
  must hold the register's lock for the duration of the operation.

SEE ALSO:
  - engine.go: recomputes balances inside every mutating transaction
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeBalance derives the balance of register from the completed orders
// assigned to it plus the signed sum of its manual movements. Pure read, no
// caching; returns a zero balance for a register with no orders and no
// movements.
func ComputeBalance(ctx context.Context, view TxView, register string) (Balance, error) {
	orders, err := view.CompletedOrders(ctx, register)
	if err != nil {
		return Balance{}, fmt.Errorf("load completed orders for %s: %w", register, err)
	}

	fromOrders := decimal.Zero
	for _, o := range orders {
		fromOrders = fromOrders.Add(o.Amount)
	}

	movements, err := view.Movements(ctx, register)
	if err != nil {
		return Balance{}, fmt.Errorf("load movements for %s: %w", register, err)
	}

	net := decimal.Zero
	for _, m := range movements {
		if countsTowardBalance(m.Kind) {
			net = net.Add(m.Signed())
		}
	}

	return Balance{
		Register:     register,
		FromOrders:   fromOrders,
		NetMovements: net,
	}, nil
}

// countsTowardBalance reports whether a movement kind contributes to the
// derived balance. Transfer legs do not: the reassigned orders already
// carry the value.
func countsTowardBalance(kind MovementKind) bool {
	switch kind {
	case MovementDeposit, MovementWithdrawal, MovementAdjustment:
		return true
	}
	return false
}
