package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier/cashbox/ledger"
	"github.com/atelier/cashbox/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "cashbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(offset time.Duration) time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return base.Add(offset)
}

// =============================================================================
// REGISTERS
// =============================================================================

func TestRegisters_CreateGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	front, err := store.CreateRegister(ctx, "front")
	require.NoError(t, err)
	assert.True(t, front.Active)

	_, err = store.CreateRegister(ctx, "back")
	require.NoError(t, err)

	got, err := store.GetRegister(ctx, "front")
	require.NoError(t, err)
	assert.Equal(t, "front", got.Name)
	assert.True(t, got.Active)

	all, err := store.ListRegisters(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "back", all[0].Name)
	assert.Equal(t, "front", all[1].Name)
}

func TestRegisters_Deactivate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateRegister(ctx, "front")
	require.NoError(t, err)

	require.NoError(t, store.SetRegisterActive(ctx, "front", false))
	got, err := store.GetRegister(ctx, "front")
	require.NoError(t, err)
	assert.False(t, got.Active)

	err = store.SetRegisterActive(ctx, "vault", false)
	assert.ErrorIs(t, err, ledger.ErrRegisterNotFound)
}

func TestRegisters_GetUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRegister(context.Background(), "vault")
	assert.ErrorIs(t, err, ledger.ErrRegisterNotFound)
}

// =============================================================================
// ORDERS
// =============================================================================

func seedOrders(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateRegister(ctx, "front")
	require.NoError(t, err)
	_, err = store.CreateRegister(ctx, "back")
	require.NoError(t, err)

	orders := []ledger.Order{
		{ID: "b-second", Register: "front", Amount: decimal.RequireFromString("600.00"), State: ledger.OrderCompleted, CreatedAt: at(time.Minute)},
		{ID: "a-first", Register: "front", Amount: decimal.RequireFromString("400.00"), State: ledger.OrderCompleted, CreatedAt: at(0)},
		{ID: "c-pending", Register: "front", Amount: decimal.RequireFromString("125.50"), State: ledger.OrderPending, CreatedAt: at(2 * time.Minute)},
		// Same timestamp as b-second: must tie-break on ID
		{ID: "a-tied", Register: "front", Amount: decimal.RequireFromString("10.00"), State: ledger.OrderCompleted, CreatedAt: at(time.Minute)},
	}
	for _, o := range orders {
		require.NoError(t, store.CreateOrder(ctx, o))
	}
}

func TestCompletedOrders_OldestFirstWithIDTiebreak(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)

	var ids []string
	err := store.WithTx(context.Background(), func(view ledger.TxView) error {
		orders, err := view.CompletedOrders(context.Background(), "front")
		if err != nil {
			return err
		}
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		return nil
	})
	require.NoError(t, err)

	// Pending excluded; ties broken by ID
	assert.Equal(t, []string{"a-first", "a-tied", "b-second"}, ids)
}

func TestOrders_StateAndGet(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	require.NoError(t, store.SetOrderState(ctx, "c-pending", ledger.OrderCompleted))
	got, err := store.GetOrder(ctx, "c-pending")
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderCompleted, got.State)
	assert.Equal(t, "125.5", got.Amount.String())

	_, err = store.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = store.SetOrderState(ctx, "missing", ledger.OrderCanceled)
	assert.Error(t, err)
}

func TestReassignOrders(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(view ledger.TxView) error {
		return view.ReassignOrders(ctx, []string{"a-first"}, "back")
	})
	require.NoError(t, err)

	moved, err := store.GetOrder(ctx, "a-first")
	require.NoError(t, err)
	assert.Equal(t, "back", moved.Register)
}

func TestReassignOrders_UnknownIDFailsTheTransaction(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(view ledger.TxView) error {
		return view.ReassignOrders(ctx, []string{"a-first", "missing"}, "back")
	})
	require.Error(t, err)

	// The first reassignment must not survive the rollback
	o, err := store.GetOrder(ctx, "a-first")
	require.NoError(t, err)
	assert.Equal(t, "front", o.Register)
}

// =============================================================================
// MOVEMENTS / TRANSACTION SEMANTICS
// =============================================================================

func testMovement(id string) ledger.Movement {
	return ledger.Movement{
		ID:            id,
		Register:      "front",
		Kind:          ledger.MovementDeposit,
		Direction:     ledger.DirectionCredit,
		Amount:        decimal.RequireFromString("50.00"),
		BalanceBefore: decimal.RequireFromString("1000.00"),
		BalanceAfter:  decimal.RequireFromString("1050.00"),
		Notes:         "float top-up",
		Reference:     "ref-1",
		Actor:         "tester",
		CreatedAt:     at(0),
	}
}

func TestMovements_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	err := store.WithTx(ctx, func(view ledger.TxView) error {
		return view.AppendMovement(ctx, testMovement("mov-1"))
	})
	require.NoError(t, err)

	movements, err := store.ListMovements(ctx, "front")
	require.NoError(t, err)
	require.Len(t, movements, 1)

	m := movements[0]
	assert.Equal(t, ledger.MovementDeposit, m.Kind)
	assert.Equal(t, ledger.DirectionCredit, m.Direction)
	assert.Equal(t, "50", m.Amount.String())
	assert.Equal(t, "1000", m.BalanceBefore.String())
	assert.Equal(t, "1050", m.BalanceAfter.String())
	assert.Equal(t, "float top-up", m.Notes)
	assert.Equal(t, "ref-1", m.Reference)
	assert.Equal(t, "tester", m.Actor)
}

func TestAppendMovement_RejectsStructurallyInvalid(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	invalid := testMovement("mov-bad")
	invalid.Amount = decimal.Zero
	err := store.WithTx(ctx, func(view ledger.TxView) error {
		return view.AppendMovement(ctx, invalid)
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	noRegister := testMovement("mov-bad2")
	noRegister.Register = ""
	err = store.WithTx(ctx, func(view ledger.TxView) error {
		return view.AppendMovement(ctx, noRegister)
	})
	assert.Error(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(view ledger.TxView) error {
		if err := view.AppendMovement(ctx, testMovement("mov-1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	movements, err := store.ListMovements(ctx, "front")
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestScan_CorruptRowsFailLoudly(t *testing.T) {
	// A row that no longer parses must surface as an error, never as a
	// zero amount or zero time.
	path := filepath.Join(t.TempDir(), "cashbox.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.CreateRegister(ctx, "front")
	require.NoError(t, err)

	// Corrupt rows planted through a second connection, bypassing the store
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.ExecContext(ctx,
		`INSERT INTO orders (id, register, amount, state, notes, created_at)
		 VALUES ('ord-bad', 'front', 'not-a-number', 'completed', NULL, '2026-03-01T09:00:00.000000000Z')`)
	require.NoError(t, err)

	_, err = store.ListOrders(ctx, "front")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt decimal")

	_, err = raw.ExecContext(ctx,
		`INSERT INTO ledger_movements
		 (id, register, kind, direction, amount, balance_before, balance_after,
		  notes, reference, actor, created_at)
		 VALUES ('mov-bad', 'front', 'deposit', 'credit', '10', '0', '10',
		         NULL, NULL, 'tester', 'yesterday-ish')`)
	require.NoError(t, err)

	_, err = store.ListMovements(ctx, "front")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt timestamp")
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_WriteAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(view ledger.TxView) error {
		return view.WriteAudit(ctx, ledger.AuditRecord{
			ID:          "aud-1",
			Action:      ledger.AuditMovementRecorded,
			Module:      ledger.ModuleTag,
			Description: "deposit of 50 on front (credit)",
			Before:      []byte(`{"register":"front","balance":"1000"}`),
			After:       []byte(`{"register":"front","balance":"1050"}`),
			Actor:       "tester",
			CreatedAt:   at(0),
		})
	})
	require.NoError(t, err)

	count, err := store.CountAudits(ctx, ledger.AuditMovementRecorded)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.CountAudits(ctx, ledger.AuditTransferCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// END TO END - engine over the SQLite store
// =============================================================================

func TestEngine_TransferOverSQLite(t *testing.T) {
	store := newTestStore(t)
	seedOrders(t, store)
	ctx := context.Background()

	engine := ledger.NewEngine(store, nil, nil)

	result, err := engine.TransferBetweenRegisters(ctx, ledger.TransferRequest{
		Origin:      "front",
		Destination: "back",
		Amount:      decimal.RequireFromString("400.00"),
		Notes:       "end of shift",
		Actor:       "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrderCount)

	moved, err := store.GetOrder(ctx, "a-first")
	require.NoError(t, err)
	assert.Equal(t, "back", moved.Register)

	back, err := engine.GetBalance(ctx, "back")
	require.NoError(t, err)
	assert.Equal(t, "400", back.Total().String())

	count, err := store.CountAudits(ctx, ledger.AuditTransferCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
