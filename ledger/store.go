/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the interface between the engine and the database. Every engine
  operation runs inside exactly one transaction, opened with WithTx; the
  TxView handed to the callback scopes all reads and writes to that
  transaction, so balance reads observe the operation's own uncommitted
  writes and are isolated from concurrent writers.

APPEND-ONLY CONTRACT:
  Movements and audit records have no update or delete path. Corrections
  are new movements, never edits.

AUDIT CONTRACT:
  WriteAudit is part of TxView on purpose: the audit write is an explicit
  step inside each transactional operation, so a failed audit write rolls
  back the whole mutation. An unaudited money movement is not a valid
  state.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - ledger/store/memory.go: in-memory store for engine tests

SEE ALSO:
  - engine.go: the only writer
  - balance.go: reads through TxView
*/
package ledger

import "context"

// =============================================================================
// STORE - Transaction factory
// =============================================================================

// Store opens transactional views. If fn returns an error the transaction
// is rolled back and no write inside it survives; otherwise it is committed.
type Store interface {
	WithTx(ctx context.Context, fn func(TxView) error) error
}

// =============================================================================
// TX VIEW - All reads and writes scoped to one transaction
// =============================================================================

// TxView bundles the collaborator contracts the engine touches inside a
// transaction. It is only ever obtained through Store.WithTx.
type TxView interface {
	RegisterReader
	OrderStore
	MovementStore
	AuditSink
}

// RegisterReader looks up registers.
type RegisterReader interface {
	// Register returns the named register, or ErrRegisterNotFound.
	Register(ctx context.Context, name string) (*Register, error)
}

// OrderStore is the slice of the external order system the engine consumes:
// it reads completed orders and reassigns them, nothing else.
type OrderStore interface {
	// CompletedOrders returns the completed orders assigned to register,
	// oldest-first. The ordering is part of the contract: transfer selection
	// must be deterministic.
	CompletedOrders(ctx context.Context, register string) ([]Order, error)

	// ReassignOrders moves the given orders to newRegister.
	ReassignOrders(ctx context.Context, orderIDs []string, newRegister string) error
}

// MovementStore persists immutable movement records.
type MovementStore interface {
	// AppendMovement persists a movement. It validates structural invariants
	// only (positive amount, register and kind present); the balance
	// snapshots must already be set by the caller.
	AppendMovement(ctx context.Context, m Movement) error

	// Movements returns all movements for register, oldest-first.
	Movements(ctx context.Context, register string) ([]Movement, error)
}

// AuditSink accepts audit records. A failed write must propagate so the
// enclosing transaction rolls back.
type AuditSink interface {
	WriteAudit(ctx context.Context, rec AuditRecord) error
}

// =============================================================================
// RECEIPT GENERATOR - Post-commit, best-effort
// =============================================================================

// ReceiptGenerator renders a document for a completed transfer. It runs
// after commit; failure is reported as a warning and never rolls the
// transfer back.
type ReceiptGenerator interface {
	Render(details TransferDetails) ([]byte, error)
}
