/*
engine.go - Ledger engine orchestration

PURPOSE:
  The engine exposes the three ledger operations:

    GetBalance               derived balance of a register
    RecordMovement           manual deposit/withdrawal/adjustment
    TransferBetweenRegisters move value by reassigning whole orders

  Each mutating operation runs as: acquire the register lock(s), open one
  transaction, recompute balances inside it, mutate, write the audit
  record, commit. Any failure at any step rolls the whole transaction
  back; no partial state is ever visible.

TRANSFER STATES:
  Validating → BalanceChecked → OrdersSelected → OrdersReassigned →
  MovementsWritten → AuditWritten → Committed; any failure → RolledBack.

RECEIPT:
  Rendering the transfer receipt happens after commit, best-effort. A
  failed render is a warning on the result, never a rollback: re-running
  a transfer because a PDF failed would double-move money.

SEE ALSO:
  - balance.go: the derivation recomputed here
  - selection.go: exact-amount order selection
  - locks.go: per-register locking discipline
*/
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates balance reads, movements and transfers over a Store.
type Engine struct {
	store    Store
	receipts ReceiptGenerator
	locks    *registerLocks
	log      *zap.Logger
}

// NewEngine creates an engine. receipts may be nil, in which case transfers
// succeed without a receipt. log may be nil.
func NewEngine(store Store, receipts ReceiptGenerator, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    store,
		receipts: receipts,
		locks:    newRegisterLocks(),
		log:      log,
	}
}

// =============================================================================
// GET BALANCE
// =============================================================================

// GetBalance returns the derived balance of the named register.
func (e *Engine) GetBalance(ctx context.Context, register string) (Balance, error) {
	var balance Balance
	err := e.store.WithTx(ctx, func(view TxView) error {
		if _, err := view.Register(ctx, register); err != nil {
			return err
		}
		b, err := ComputeBalance(ctx, view, register)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return Balance{}, e.classify(err)
	}
	return balance, nil
}

// =============================================================================
// RECORD MOVEMENT
// =============================================================================

// MovementInput is the input to RecordMovement.
type MovementInput struct {
	Register  string
	Kind      MovementKind
	Direction Direction // required for adjustments, derived otherwise
	Amount    decimal.Decimal
	Notes     string
	Reference string
	Actor     string
}

// RecordMovement appends a manual movement to the register's ledger, with
// balance snapshots taken inside the same transaction, and audits it.
//
// Only the manual kinds are accepted here: transfer_in/transfer_out rows
// are written exclusively by TransferBetweenRegisters as the record of an
// order reassignment.
func (e *Engine) RecordMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	if in.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validKind(in.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	var direction Direction
	switch in.Kind {
	case MovementTransferIn, MovementTransferOut:
		return nil, fmt.Errorf("%w: %q is reserved for transfers", ErrInvalidKind, in.Kind)
	case MovementAdjustment:
		if in.Direction != DirectionCredit && in.Direction != DirectionDebit {
			return nil, fmt.Errorf("%w: adjustment requires a direction", ErrInvalidKind)
		}
		direction = in.Direction
	default:
		direction, _ = directionOf(in.Kind)
	}
	if len(strings.TrimSpace(in.Notes)) < MinNotesLength {
		return nil, fmt.Errorf("%w: at least %d characters required", ErrNotesTooShort, MinNotesLength)
	}

	release, err := e.locks.Acquire(ctx, in.Register)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MovementResult
	err = e.store.WithTx(ctx, func(view TxView) error {
		reg, err := view.Register(ctx, in.Register)
		if err != nil {
			return err
		}
		if !reg.Active {
			return fmt.Errorf("%w: %s", ErrRegisterInactive, reg.Name)
		}

		balance, err := ComputeBalance(ctx, view, in.Register)
		if err != nil {
			return err
		}
		before := balance.Total()

		movement := Movement{
			ID:            uuid.NewString(),
			Register:      in.Register,
			Kind:          in.Kind,
			Direction:     direction,
			Amount:        in.Amount,
			BalanceBefore: before,
			Notes:         in.Notes,
			Reference:     in.Reference,
			Actor:         in.Actor,
			CreatedAt:     time.Now().UTC(),
		}
		movement.BalanceAfter = before.Add(movement.Signed())

		if err := view.AppendMovement(ctx, movement); err != nil {
			return err
		}

		beforeJSON, err := json.Marshal(balanceSnapshot{Register: in.Register, Balance: before})
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		afterJSON, err := json.Marshal(balanceSnapshot{Register: in.Register, Balance: movement.BalanceAfter})
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		audit := AuditRecord{
			ID:     uuid.NewString(),
			Action: AuditMovementRecorded,
			Module: ModuleTag,
			Description: fmt.Sprintf("%s of %s on %s (%s)",
				in.Kind, in.Amount, in.Register, direction),
			Before:    beforeJSON,
			After:     afterJSON,
			Notes:     in.Notes,
			Actor:     in.Actor,
			CreatedAt: movement.CreatedAt,
		}
		if err := view.WriteAudit(ctx, audit); err != nil {
			return err
		}

		result = &MovementResult{
			Movement:      movement,
			BalanceBefore: before,
			BalanceAfter:  movement.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, e.classify(err)
	}
	return result, nil
}

// =============================================================================
// TRANSFER BETWEEN REGISTERS
// =============================================================================

// TransferBetweenRegisters moves req.Amount from origin to destination by
// reassigning whole completed orders, oldest-first, whose amounts sum
// exactly to the requested amount. The two transfer legs and the audit
// record are written in the same transaction as the reassignment.
func (e *Engine) TransferBetweenRegisters(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Origin == "" || req.Destination == "" || req.Origin == req.Destination {
		return nil, ErrSameRegister
	}

	release, err := e.locks.Acquire(ctx, req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		result  *TransferResult
		details TransferDetails
	)
	err = e.store.WithTx(ctx, func(view TxView) error {
		origin, err := view.Register(ctx, req.Origin)
		if err != nil {
			return err
		}
		destination, err := view.Register(ctx, req.Destination)
		if err != nil {
			return err
		}
		if !origin.Active {
			return fmt.Errorf("%w: %s", ErrRegisterInactive, origin.Name)
		}
		if !destination.Active {
			return fmt.Errorf("%w: %s", ErrRegisterInactive, destination.Name)
		}

		// Both balances are taken before the reassignment so the movement
		// snapshots bracket the value actually moved.
		originBalance, err := ComputeBalance(ctx, view, req.Origin)
		if err != nil {
			return err
		}
		destBalance, err := ComputeBalance(ctx, view, req.Destination)
		if err != nil {
			return err
		}
		if originBalance.Total().LessThan(req.Amount) {
			return &InsufficientBalanceError{
				Register:  req.Origin,
				Available: originBalance.Total(),
				Requested: req.Amount,
			}
		}

		orders, err := view.CompletedOrders(ctx, req.Origin)
		if err != nil {
			return err
		}
		n, ok := SelectExactPrefix(PrefixAmounts(orders), req.Amount)
		if !ok {
			return &UnreachableAmountError{
				Register:  req.Origin,
				Requested: req.Amount,
				Scanned:   len(orders),
			}
		}
		selected := orders[:n]

		ids := make([]string, len(selected))
		for i, o := range selected {
			ids[i] = o.ID
		}
		if err := view.ReassignOrders(ctx, ids, req.Destination); err != nil {
			return err
		}

		now := time.Now().UTC()
		reference := uuid.NewString()

		outLeg := Movement{
			ID:            uuid.NewString(),
			Register:      req.Origin,
			Kind:          MovementTransferOut,
			Direction:     DirectionDebit,
			Amount:        req.Amount,
			BalanceBefore: originBalance.Total(),
			BalanceAfter:  originBalance.Total().Sub(req.Amount),
			Notes:         req.Notes,
			Reference:     reference,
			Actor:         req.Actor,
			CreatedAt:     now,
		}
		inLeg := Movement{
			ID:            uuid.NewString(),
			Register:      req.Destination,
			Kind:          MovementTransferIn,
			Direction:     DirectionCredit,
			Amount:        req.Amount,
			BalanceBefore: destBalance.Total(),
			BalanceAfter:  destBalance.Total().Add(req.Amount),
			Notes:         req.Notes,
			Reference:     reference,
			Actor:         req.Actor,
			CreatedAt:     now,
		}
		if err := view.AppendMovement(ctx, outLeg); err != nil {
			return err
		}
		if err := view.AppendMovement(ctx, inLeg); err != nil {
			return err
		}

		beforeJSON, err := json.Marshal(transferSnapshot{
			Origin:      balanceSnapshot{Register: req.Origin, Balance: originBalance.Total()},
			Destination: balanceSnapshot{Register: req.Destination, Balance: destBalance.Total()},
		})
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		afterJSON, err := json.Marshal(transferSnapshot{
			Origin:      balanceSnapshot{Register: req.Origin, Balance: outLeg.BalanceAfter},
			Destination: balanceSnapshot{Register: req.Destination, Balance: inLeg.BalanceAfter},
			OrderCount:  len(selected),
			OutMovement: outLeg.ID,
			InMovement:  inLeg.ID,
		})
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		audit := AuditRecord{
			ID:     uuid.NewString(),
			Action: AuditTransferCompleted,
			Module: ModuleTag,
			Description: fmt.Sprintf("transfer of %s from %s to %s (%d orders)",
				req.Amount, req.Origin, req.Destination, len(selected)),
			Before:    beforeJSON,
			After:     afterJSON,
			Notes:     req.Notes,
			Actor:     req.Actor,
			CreatedAt: now,
		}
		if err := view.WriteAudit(ctx, audit); err != nil {
			return err
		}

		result = &TransferResult{
			Amount:        req.Amount,
			OrderCount:    len(selected),
			Orders:        selected,
			OutMovementID: outLeg.ID,
			InMovementID:  inLeg.ID,
			Reference:     reference,
		}
		details = TransferDetails{
			Origin:      req.Origin,
			Destination: req.Destination,
			Amount:      req.Amount,
			Orders:      selected,
			Reference:   reference,
			Notes:       req.Notes,
			Actor:       req.Actor,
			CompletedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, e.classify(err)
	}

	// Post-commit, best-effort. A slow or failing renderer must never block
	// or revert money movement.
	if e.receipts != nil {
		receipt, err := e.receipts.Render(details)
		if err != nil {
			result.Warning = fmt.Sprintf("transfer committed but receipt rendering failed: %v", err)
			e.log.Warn("receipt rendering failed",
				zap.String("reference", result.Reference),
				zap.Error(err))
		} else {
			result.Receipt = receipt
		}
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type balanceSnapshot struct {
	Register string          `json:"register"`
	Balance  decimal.Decimal `json:"balance"`
}

type transferSnapshot struct {
	Origin      balanceSnapshot `json:"origin"`
	Destination balanceSnapshot `json:"destination"`
	OrderCount  int             `json:"order_count,omitempty"`
	OutMovement string          `json:"out_movement_id,omitempty"`
	InMovement  string          `json:"in_movement_id,omitempty"`
}

// classify wraps storage-layer failures as ErrPersistence while letting the
// ledger's own taxonomy pass through untouched.
func (e *Engine) classify(err error) error {
	if err == nil {
		return nil
	}
	if IsValidationError(err) || IsBusinessRuleError(err) || IsNotFound(err) ||
		errors.Is(err, ErrOperationTimedOut) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
