// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atelier/cashbox/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store with copy-on-write snapshots: WithTx works
// on a scratch copy of the state and swaps it in only when the callback
// succeeds, so rollback semantics match a real database.
type Memory struct {
	mu    sync.Mutex
	state *state

	// FailAudit makes every audit write fail. Used to test that an audit
	// failure rolls the whole operation back.
	FailAudit bool
}

type state struct {
	registers map[string]ledger.Register
	orders    map[string]ledger.Order
	movements []ledger.Movement
	audits    []ledger.AuditRecord
}

func NewMemory() *Memory {
	return &Memory{state: &state{
		registers: make(map[string]ledger.Register),
		orders:    make(map[string]ledger.Order),
	}}
}

// SeedRegister adds a register outside any transaction.
func (m *Memory) SeedRegister(r ledger.Register) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.registers[r.Name] = r
}

// SeedOrder adds an order outside any transaction.
func (m *Memory) SeedOrder(o ledger.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.orders[o.ID] = o
}

// AllMovements returns all committed movements, in append order.
func (m *Memory) AllMovements() []ledger.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Movement, len(m.state.movements))
	copy(out, m.state.movements)
	return out
}

// AllAudits returns all committed audit records, in append order.
func (m *Memory) AllAudits() []ledger.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.AuditRecord, len(m.state.audits))
	copy(out, m.state.audits)
	return out
}

// Order returns a committed order by ID.
func (m *Memory) Order(id string) (ledger.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	return o, ok
}

// WithTx runs fn against a scratch copy of the state. The copy replaces the
// committed state only when fn returns nil.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.TxView) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scratch := m.state.clone()
	view := &memView{state: scratch, failAudit: m.FailAudit}
	if err := fn(view); err != nil {
		return err
	}
	m.state = scratch
	return nil
}

func (s *state) clone() *state {
	c := &state{
		registers: make(map[string]ledger.Register, len(s.registers)),
		orders:    make(map[string]ledger.Order, len(s.orders)),
		movements: make([]ledger.Movement, len(s.movements)),
		audits:    make([]ledger.AuditRecord, len(s.audits)),
	}
	for k, v := range s.registers {
		c.registers[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	copy(c.movements, s.movements)
	copy(c.audits, s.audits)
	return c
}

// =============================================================================
// TX VIEW
// =============================================================================

type memView struct {
	state     *state
	failAudit bool
}

func (v *memView) Register(_ context.Context, name string) (*ledger.Register, error) {
	r, ok := v.state.registers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrRegisterNotFound, name)
	}
	return &r, nil
}

func (v *memView) CompletedOrders(_ context.Context, register string) ([]ledger.Order, error) {
	var orders []ledger.Order
	for _, o := range v.state.orders {
		if o.Register == register && o.State == ledger.OrderCompleted {
			orders = append(orders, o)
		}
	}
	// Oldest-first, ID tiebreak: same contract as the SQL store.
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (v *memView) ReassignOrders(_ context.Context, orderIDs []string, newRegister string) error {
	for _, id := range orderIDs {
		o, ok := v.state.orders[id]
		if !ok {
			return fmt.Errorf("reassign: order %s not found", id)
		}
		o.Register = newRegister
		v.state.orders[id] = o
	}
	return nil
}

func (v *memView) AppendMovement(_ context.Context, m ledger.Movement) error {
	if m.Amount.Sign() <= 0 {
		return fmt.Errorf("append movement: %w", ledger.ErrInvalidAmount)
	}
	if m.Register == "" || m.Kind == "" {
		return fmt.Errorf("append movement: register and kind are required")
	}
	v.state.movements = append(v.state.movements, m)
	return nil
}

func (v *memView) Movements(_ context.Context, register string) ([]ledger.Movement, error) {
	var out []ledger.Movement
	for _, m := range v.state.movements {
		if m.Register == register {
			out = append(out, m)
		}
	}
	return out, nil
}

func (v *memView) WriteAudit(_ context.Context, rec ledger.AuditRecord) error {
	if v.failAudit {
		return fmt.Errorf("audit sink unavailable")
	}
	v.state.audits = append(v.state.audits, rec)
	return nil
}
