/*
Package sqlite provides the SQLite-backed Store for the cashbox ledger.

PURPOSE:
  Implements ledger.Store plus the register and order persistence the API
  layer needs. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for ledger_movements or audit_log.
  Corrections are new movements, never edits.

KEY TABLES:
  registers:        The two cash boxes (soft-deactivatable)
  orders:           External orders; the ledger reads and reassigns them
  ledger_movements: Immutable log of manual adjustments and transfer legs
  audit_log:        One record per balance-mutating operation

CONCURRENCY:
  Writers are serialized with a mutex on top of SQLite's single-writer
  model. The per-register locking that actually protects the
  read-balance-then-mutate window lives in the ledger engine; with a
  server database that engine discipline carries over unchanged.

WAL MODE:
  The database is opened with WAL and foreign keys on.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/atelier/cashbox/ledger"
)

// Store implements ledger.Store and the supporting register/order
// persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registers (
		name       TEXT PRIMARY KEY,
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id         TEXT PRIMARY KEY,
		register   TEXT NOT NULL REFERENCES registers(name),
		amount     TEXT NOT NULL,
		state      TEXT NOT NULL,
		notes      TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance derivation and transfer selection (hot path)
	CREATE INDEX IF NOT EXISTS idx_orders_register_state
		ON orders(register, state, created_at);

	-- Append-only: no UPDATE/DELETE path exists for this table
	CREATE TABLE IF NOT EXISTS ledger_movements (
		id             TEXT PRIMARY KEY,
		register       TEXT NOT NULL REFERENCES registers(name),
		kind           TEXT NOT NULL,
		direction      TEXT NOT NULL,
		amount         TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after  TEXT NOT NULL,
		notes          TEXT,
		reference      TEXT,
		actor          TEXT NOT NULL,
		created_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_register
		ON ledger_movements(register, created_at);
	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON ledger_movements(reference) WHERE reference IS NOT NULL;

	-- Append-only audit trail
	CREATE TABLE IF NOT EXISTS audit_log (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		module      TEXT NOT NULL,
		description TEXT NOT NULL,
		before_json TEXT,
		after_json  TEXT,
		notes       TEXT,
		actor       TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_action
		ON audit_log(action, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeLayout is RFC3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ORDER BY on the TEXT column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dbtx is satisfied by both *sql.DB and *sql.Tx so query helpers can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.Store interface)
// =============================================================================

// WithTx executes fn within a database transaction. If fn returns an error
// the transaction is rolled back and nothing written inside it survives.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.TxView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView implements ledger.TxView over one *sql.Tx.
type txView struct {
	tx *sql.Tx
}

func (v *txView) Register(ctx context.Context, name string) (*ledger.Register, error) {
	return getRegister(ctx, v.tx, name)
}

func (v *txView) CompletedOrders(ctx context.Context, register string) ([]ledger.Order, error) {
	return completedOrders(ctx, v.tx, register)
}

func (v *txView) ReassignOrders(ctx context.Context, orderIDs []string, newRegister string) error {
	for _, id := range orderIDs {
		res, err := v.tx.ExecContext(ctx,
			"UPDATE orders SET register = ? WHERE id = ?", newRegister, id)
		if err != nil {
			return fmt.Errorf("failed to reassign order %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("reassign: order %s not found", id)
		}
	}
	return nil
}

func (v *txView) AppendMovement(ctx context.Context, m ledger.Movement) error {
	return appendMovement(ctx, v.tx, m)
}

func (v *txView) Movements(ctx context.Context, register string) ([]ledger.Movement, error) {
	return queryMovements(ctx, v.tx,
		`SELECT id, register, kind, direction, amount, balance_before, balance_after,
		        notes, reference, actor, created_at
		 FROM ledger_movements
		 WHERE register = ?
		 ORDER BY created_at ASC, id ASC`, register)
}

func (v *txView) WriteAudit(ctx context.Context, rec ledger.AuditRecord) error {
	_, err := v.tx.ExecContext(ctx,
		`INSERT INTO audit_log
		 (id, action, module, description, before_json, after_json, notes, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Action),
		rec.Module,
		rec.Description,
		nullString(string(rec.Before)),
		nullString(string(rec.After)),
		nullString(rec.Notes),
		rec.Actor,
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// =============================================================================
// MOVEMENT APPEND - structural validation only
// =============================================================================

func appendMovement(ctx context.Context, db dbtx, m ledger.Movement) error {
	if m.Amount.Sign() <= 0 {
		return fmt.Errorf("append movement: %w", ledger.ErrInvalidAmount)
	}
	if m.Register == "" || m.Kind == "" {
		return fmt.Errorf("append movement: register and kind are required")
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO ledger_movements
		 (id, register, kind, direction, amount, balance_before, balance_after,
		  notes, reference, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Register,
		string(m.Kind),
		string(m.Direction),
		m.Amount.String(),
		m.BalanceBefore.String(),
		m.BalanceAfter.String(),
		nullString(m.Notes),
		nullString(m.Reference),
		m.Actor,
		m.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

// =============================================================================
// REGISTERS
// =============================================================================

// CreateRegister adds a register. Registers are created once at setup time.
func (s *Store) CreateRegister(ctx context.Context, name string) (*ledger.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := ledger.Register{Name: name, Active: true, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO registers (name, active, created_at) VALUES (?, 1, ?)",
		reg.Name, reg.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to create register: %w", err)
	}
	return &reg, nil
}

// SetRegisterActive soft-activates or deactivates a register. Registers are
// never deleted.
func (s *Store) SetRegisterActive(ctx context.Context, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE registers SET active = ? WHERE name = ?", boolInt(active), name)
	if err != nil {
		return fmt.Errorf("failed to update register: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrRegisterNotFound, name)
	}
	return nil
}

// GetRegister returns the named register.
func (s *Store) GetRegister(ctx context.Context, name string) (*ledger.Register, error) {
	return getRegister(ctx, s.db, name)
}

// ListRegisters returns all registers, by name.
func (s *Store) ListRegisters(ctx context.Context) ([]ledger.Register, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, active, created_at FROM registers ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list registers: %w", err)
	}
	defer rows.Close()

	var registers []ledger.Register
	for rows.Next() {
		r, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		registers = append(registers, r)
	}
	return registers, rows.Err()
}

func getRegister(ctx context.Context, db dbtx, name string) (*ledger.Register, error) {
	var (
		reg       ledger.Register
		active    int
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT name, active, created_at FROM registers WHERE name = ?", name).
		Scan(&reg.Name, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrRegisterNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get register: %w", err)
	}
	reg.Active = active != 0
	reg.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", reg.Name, err)
	}
	return &reg, nil
}

// =============================================================================
// ORDERS
// =============================================================================

// CreateOrder inserts an order assigned to a register.
func (s *Store) CreateOrder(ctx context.Context, o ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, register, amount, state, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.Register, o.Amount.String(), string(o.State),
		nullString(o.Notes), o.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// SetOrderState updates an order's completion state.
func (s *Store) SetOrderState(ctx context.Context, id string, state ledger.OrderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET state = ? WHERE id = ?", string(state), id)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order not found: %s", id)
	}
	return nil
}

// GetOrder returns an order by ID.
func (s *Store) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, register, amount, state, notes, created_at
		 FROM orders WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns orders for a register (all states), oldest-first.
func (s *Store) ListOrders(ctx context.Context, register string) ([]ledger.Order, error) {
	return queryOrders(ctx, s.db,
		`SELECT id, register, amount, state, notes, created_at
		 FROM orders WHERE register = ?
		 ORDER BY created_at ASC, id ASC`, register)
}

func completedOrders(ctx context.Context, db dbtx, register string) ([]ledger.Order, error) {
	// Oldest-first with ID tiebreak: transfer selection must be
	// deterministic across identical requests.
	return queryOrders(ctx, db,
		`SELECT id, register, amount, state, notes, created_at
		 FROM orders WHERE register = ? AND state = ?
		 ORDER BY created_at ASC, id ASC`, register, string(ledger.OrderCompleted))
}

func queryOrders(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// =============================================================================
// MOVEMENTS / AUDIT - read paths for the API
// =============================================================================

// ListMovements returns all movements for a register, oldest-first.
func (s *Store) ListMovements(ctx context.Context, register string) ([]ledger.Movement, error) {
	return queryMovements(ctx, s.db,
		`SELECT id, register, kind, direction, amount, balance_before, balance_after,
		        notes, reference, actor, created_at
		 FROM ledger_movements
		 WHERE register = ?
		 ORDER BY created_at ASC, id ASC`, register)
}

// CountAudits returns the number of audit records for an action, for tests
// and health reporting.
func (s *Store) CountAudits(ctx context.Context, action ledger.AuditAction) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_log WHERE action = ?", string(action)).Scan(&count)
	return count, err
}

func queryMovements(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Movement, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func scanRegister(rows *sql.Rows) (ledger.Register, error) {
	var (
		reg       ledger.Register
		active    int
		createdAt string
	)
	if err := rows.Scan(&reg.Name, &active, &createdAt); err != nil {
		return reg, fmt.Errorf("failed to scan register: %w", err)
	}
	reg.Active = active != 0
	created, err := parseTime(createdAt)
	if err != nil {
		return reg, fmt.Errorf("register %s: %w", reg.Name, err)
	}
	reg.CreatedAt = created
	return reg, nil
}

func scanOrder(rows *sql.Rows) (ledger.Order, error) {
	var (
		o         ledger.Order
		amount    string
		state     string
		notes     sql.NullString
		createdAt string
	)
	if err := rows.Scan(&o.ID, &o.Register, &amount, &state, &notes, &createdAt); err != nil {
		return o, fmt.Errorf("failed to scan order: %w", err)
	}
	var err error
	if o.Amount, err = parseDecimal(amount); err != nil {
		return o, fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.State = ledger.OrderState(state)
	o.Notes = notes.String
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return o, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return o, nil
}

func scanMovement(rows *sql.Rows) (ledger.Movement, error) {
	var (
		m             ledger.Movement
		kind          string
		direction     string
		amount        string
		balanceBefore string
		balanceAfter  string
		notes         sql.NullString
		reference     sql.NullString
		createdAt     string
	)
	err := rows.Scan(&m.ID, &m.Register, &kind, &direction, &amount,
		&balanceBefore, &balanceAfter, &notes, &reference, &m.Actor, &createdAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}
	m.Kind = ledger.MovementKind(kind)
	m.Direction = ledger.Direction(direction)
	if m.Amount, err = parseDecimal(amount); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	if m.BalanceBefore, err = parseDecimal(balanceBefore); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	if m.BalanceAfter, err = parseDecimal(balanceAfter); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	m.Notes = notes.String
	m.Reference = reference.String
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	return m, nil
}

// parseDecimal and parseTime fail loudly: a row that no longer parses means
// the ledger data is corrupted, and a zero amount must never stand in for it.
func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
