/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Amounts travel as JSON strings or numbers; decimal.Decimal accepts both.
  Business validation lives in the ledger engine, not here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier/cashbox/ledger"
)

// =============================================================================
// REGISTERS
// =============================================================================

type RegisterDTO struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateRegisterRequest struct {
	Name string `json:"name"`
}

func registerDTO(r ledger.Register) RegisterDTO {
	return RegisterDTO{
		Name:      r.Name,
		Active:    r.Active,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO exposes the balance components: the completed-order sum, the
// net of manual movements, and their total.
type BalanceDTO struct {
	Register     string `json:"register"`
	FromOrders   string `json:"from_orders"`
	NetMovements string `json:"net_movements"`
	Total        string `json:"total"`
}

func balanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		Register:     b.Register,
		FromOrders:   b.FromOrders.StringFixed(2),
		NetMovements: b.NetMovements.StringFixed(2),
		Total:        b.Total().StringFixed(2),
	}
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID            string `json:"id"`
	Register      string `json:"register"`
	Kind          string `json:"kind"`
	Direction     string `json:"direction"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Notes         string `json:"notes,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Actor         string `json:"actor"`
	CreatedAt     string `json:"created_at"`
}

func movementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:            m.ID,
		Register:      m.Register,
		Kind:          string(m.Kind),
		Direction:     string(m.Direction),
		Amount:        m.Amount.StringFixed(2),
		BalanceBefore: m.BalanceBefore.StringFixed(2),
		BalanceAfter:  m.BalanceAfter.StringFixed(2),
		Notes:         m.Notes,
		Reference:     m.Reference,
		Actor:         m.Actor,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

type RecordMovementRequest struct {
	Kind      string          `json:"kind"`
	Direction string          `json:"direction,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
	Reference string          `json:"reference,omitempty"`
	Actor     string          `json:"actor"`
}

type MovementResultDTO struct {
	Movement      MovementDTO `json:"movement"`
	BalanceBefore string      `json:"balance_before"`
	BalanceAfter  string      `json:"balance_after"`
}

// =============================================================================
// TRANSFERS
// =============================================================================

type TransferRequestDTO struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes,omitempty"`
	Actor       string          `json:"actor"`
}

type TransferResultDTO struct {
	Amount        string     `json:"amount"`
	OrderCount    int        `json:"order_count"`
	Orders        []OrderDTO `json:"orders"`
	OutMovementID string     `json:"out_movement_id"`
	InMovementID  string     `json:"in_movement_id"`
	Reference     string     `json:"reference"`
	Receipt       string     `json:"receipt,omitempty"`
	Warning       string     `json:"warning,omitempty"`
}

// =============================================================================
// ORDERS
// =============================================================================

type OrderDTO struct {
	ID        string `json:"id"`
	Register  string `json:"register"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

func orderDTO(o ledger.Order) OrderDTO {
	return OrderDTO{
		ID:        o.ID,
		Register:  o.Register,
		Amount:    o.Amount.StringFixed(2),
		State:     string(o.State),
		Notes:     o.Notes,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

type CreateOrderRequest struct {
	Register string          `json:"register"`
	Amount   decimal.Decimal `json:"amount"`
	Notes    string          `json:"notes,omitempty"`
}
