/*
Package ledger implements the cash-register ledger and transfer engine.

PURPOSE:
  Tracks the money held by the business's two physical cash registers.
  A register's balance is never stored: it is always derived from the
  completed orders assigned to the register plus the signed sum of its
  manual movements. Every balance change is recorded as an immutable
  movement and audited inside the same transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Register: one of the two cash boxes
  - Movement: an immutable ledger entry (manual change or transfer leg)
  - Order: an external sale; only completed orders count toward balance
  - Balance: the derived components of a register's balance
  - AuditRecord: the attribution record written with every mutation

DESIGN PRINCIPLES:
  1. Immutability: movements are never updated or deleted; corrections
     are new movements
  2. Precision: decimal.Decimal for all amounts, never floats
  3. Derivation: balance is recomputed inside the acting transaction,
     never read from a counter that can drift
  4. Attribution: every mutation carries an actor and an audit record

SEE ALSO:
  - balance.go: balance derivation
  - engine.go: RecordMovement / TransferBetweenRegisters orchestration
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REGISTER - One of the two cash boxes
// =============================================================================

// Register is identified by its unique name. Registers are created once at
// setup time and soft-deactivated rather than deleted.
type Register struct {
	Name      string
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// ORDER - External sale, referenced by the ledger
// =============================================================================

// OrderState is the completion state of an order. Only completed orders
// count toward a register's balance.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderCompleted OrderState = "completed"
	OrderCanceled  OrderState = "canceled"
)

// Order belongs to exactly one register at any time. Reassigning it to
// another register is the only mutation this package performs on orders.
type Order struct {
	ID        string
	Register  string
	Amount    decimal.Decimal
	State     OrderState
	Notes     string
	CreatedAt time.Time
}

// =============================================================================
// MOVEMENT - Immutable ledger entry
// =============================================================================

type MovementKind string

const (
	MovementDeposit     MovementKind = "deposit"
	MovementWithdrawal  MovementKind = "withdrawal"
	MovementTransferIn  MovementKind = "transfer_in"
	MovementTransferOut MovementKind = "transfer_out"
	MovementAdjustment  MovementKind = "adjustment"
)

// Direction says which way an adjustment moves the balance. For every other
// kind the direction is implied and the field is derived, not chosen.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Movement records one atomic change to a register's balance outside of
// orders. BalanceBefore/BalanceAfter are authoritative snapshots taken at
// write time and are never recomputed later.
type Movement struct {
	ID            string
	Register      string
	Kind          MovementKind
	Direction     Direction
	Amount        decimal.Decimal // always positive; Direction carries the sign
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Notes         string
	Reference     string
	Actor         string
	CreatedAt     time.Time
}

// Signed returns the movement's contribution to the register balance.
func (m Movement) Signed() decimal.Decimal {
	if m.Direction == DirectionDebit {
		return m.Amount.Neg()
	}
	return m.Amount
}

// directionOf returns the implied direction for a kind. Adjustments have no
// implied direction; callers must declare one.
func directionOf(kind MovementKind) (Direction, bool) {
	switch kind {
	case MovementDeposit, MovementTransferIn:
		return DirectionCredit, true
	case MovementWithdrawal, MovementTransferOut:
		return DirectionDebit, true
	default:
		return "", false
	}
}

// validKind reports whether kind is one of the movement kinds.
func validKind(kind MovementKind) bool {
	switch kind {
	case MovementDeposit, MovementWithdrawal, MovementTransferIn,
		MovementTransferOut, MovementAdjustment:
		return true
	}
	return false
}

// =============================================================================
// BALANCE - Derived, never stored
// =============================================================================

// Balance holds the derived components of a register's balance:
//
//	Total = FromOrders + NetMovements
//
// where FromOrders sums the completed orders assigned to the register and
// NetMovements is the signed sum of its movements.
type Balance struct {
	Register     string
	FromOrders   decimal.Decimal
	NetMovements decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.FromOrders.Add(b.NetMovements)
}

// =============================================================================
// AUDIT RECORD - Written with every balance-mutating operation
// =============================================================================

type AuditAction string

const (
	AuditMovementRecorded  AuditAction = "movement_recorded"
	AuditTransferCompleted AuditAction = "transfer_completed"
)

// AuditRecord attributes a balance mutation. It is written inside the same
// transaction as the mutation; if the write fails the mutation is rolled
// back. Before/After are JSON snapshots of the affected balances.
type AuditRecord struct {
	ID          string
	Action      AuditAction
	Module      string
	Description string
	Before      []byte
	After       []byte
	Notes       string
	Actor       string
	CreatedAt   time.Time
}

// ModuleTag is the module field stamped on every audit record this package
// writes.
const ModuleTag = "ledger"

// =============================================================================
// OPERATION RESULTS
// =============================================================================

// MovementResult is returned by RecordMovement.
type MovementResult struct {
	Movement      Movement
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// TransferRequest is the input to TransferBetweenRegisters.
type TransferRequest struct {
	Origin      string
	Destination string
	Amount      decimal.Decimal
	Notes       string
	Actor       string
}

// TransferResult is returned by a successful transfer. Warning is set when
// post-commit receipt rendering failed; the transfer itself stands.
type TransferResult struct {
	Amount        decimal.Decimal
	OrderCount    int
	Orders        []Order
	OutMovementID string
	InMovementID  string
	Reference     string
	Receipt       []byte
	Warning       string
}

// TransferDetails is what the receipt generator renders after commit.
type TransferDetails struct {
	Origin      string
	Destination string
	Amount      decimal.Decimal
	Orders      []Order
	Reference   string
	Notes       string
	Actor       string
	CompletedAt time.Time
}
