/*
handlers.go - HTTP API handlers for the cashbox ledger

PURPOSE:
  Exposes the ledger engine via REST. Handles HTTP request/response and
  JSON serialization, delegates everything else to the engine and store.

ENDPOINTS:
  Registers:
    GET    /api/registers                      List registers
    POST   /api/registers                      Create register (setup)
    GET    /api/registers/{name}/balance       Derived balance components
    GET    /api/registers/{name}/movements     Movement history
    POST   /api/registers/{name}/movements     Record a manual movement
    GET    /api/registers/{name}/orders        Orders assigned to register
    POST   /api/registers/{name}/deactivate    Soft-deactivate
    POST   /api/registers/{name}/activate      Re-activate

  Transfers:
    POST   /api/transfers                      Move value between registers

  Orders (minimal, enough to feed the ledger):
    POST   /api/orders                         Create order
    POST   /api/orders/{id}/complete           Mark completed

ERROR HANDLING:
  The ledger error taxonomy maps to HTTP status:
  - 400: validation errors (bad amount, short notes, same register)
  - 404: unknown register or order
  - 409: business-rule failures (insufficient balance, unreachable amount,
         inactive register)
  - 504: lock wait exceeded the request timeout
  - 500: persistence failures (the operation was rolled back)

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier/cashbox/ledger"
	"github.com/atelier/cashbox/store/sqlite"
)

// operationTimeout bounds how long a mutating request may wait on register
// locks before it is rolled back with OperationTimedOut.
const operationTimeout = 10 * time.Second

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *ledger.Engine
	Log    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, engine *ledger.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Engine: engine, Log: log}
}

// =============================================================================
// REGISTER HANDLERS
// =============================================================================

func (h *Handler) ListRegisters(w http.ResponseWriter, r *http.Request) {
	registers, err := h.Store.ListRegisters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list registers", err)
		return
	}

	dtos := make([]RegisterDTO, 0, len(registers))
	for _, reg := range registers {
		dtos = append(dtos, registerDTO(reg))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRegister(w http.ResponseWriter, r *http.Request) {
	var req CreateRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Register name is required", nil)
		return
	}

	reg, err := h.Store.CreateRegister(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create register", err)
		return
	}
	writeJSON(w, http.StatusCreated, registerDTO(*reg))
}

func (h *Handler) SetRegisterActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := h.Store.SetRegisterActive(r.Context(), name, active); err != nil {
			if ledger.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "Register not found", nil)
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to update register", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "active": active})
	}
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	balance, err := h.Engine.GetBalance(r.Context(), name)
	if err != nil {
		h.writeLedgerError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTO(balance))
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	movements, err := h.Store.ListMovements(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}

	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, movementDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	orders, err := h.Store.ListOrders(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MOVEMENT / TRANSFER HANDLERS
// =============================================================================

func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req RecordMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "Actor is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), operationTimeout)
	defer cancel()

	result, err := h.Engine.RecordMovement(ctx, ledger.MovementInput{
		Register:  name,
		Kind:      ledger.MovementKind(req.Kind),
		Direction: ledger.Direction(req.Direction),
		Amount:    req.Amount,
		Notes:     req.Notes,
		Reference: req.Reference,
		Actor:     req.Actor,
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to record movement", err)
		return
	}

	writeJSON(w, http.StatusCreated, MovementResultDTO{
		Movement:      movementDTO(result.Movement),
		BalanceBefore: result.BalanceBefore.StringFixed(2),
		BalanceAfter:  result.BalanceAfter.StringFixed(2),
	})
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "Actor is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), operationTimeout)
	defer cancel()

	result, err := h.Engine.TransferBetweenRegisters(ctx, ledger.TransferRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		Amount:      req.Amount,
		Notes:       req.Notes,
		Actor:       req.Actor,
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to transfer", err)
		return
	}

	orders := make([]OrderDTO, 0, len(result.Orders))
	for _, o := range result.Orders {
		orders = append(orders, orderDTO(o))
	}
	writeJSON(w, http.StatusCreated, TransferResultDTO{
		Amount:        result.Amount.StringFixed(2),
		OrderCount:    result.OrderCount,
		Orders:        orders,
		OutMovementID: result.OutMovementID,
		InMovementID:  result.InMovementID,
		Reference:     result.Reference,
		Receipt:       string(result.Receipt),
		Warning:       result.Warning,
	})
}

// =============================================================================
// ORDER HANDLERS - minimal surface to feed the ledger
// =============================================================================

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Register == "" {
		writeError(w, http.StatusBadRequest, "Register is required", nil)
		return
	}
	if req.Amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}
	if _, err := h.Store.GetRegister(r.Context(), req.Register); err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Register not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to check register", err)
		return
	}

	order := ledger.Order{
		ID:        uuid.NewString(),
		Register:  req.Register,
		Amount:    req.Amount,
		State:     ledger.OrderPending,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateOrder(r.Context(), order); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, orderDTO(order))
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Order not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get order", err)
		return
	}
	if order.State == ledger.OrderCompleted {
		writeError(w, http.StatusConflict, "Order already completed", nil)
		return
	}

	if err := h.Store.SetOrderState(r.Context(), id, ledger.OrderCompleted); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to complete order", err)
		return
	}
	order.State = ledger.OrderCompleted
	writeJSON(w, http.StatusOK, orderDTO(*order))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeLedgerError maps the ledger error taxonomy to HTTP status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidationError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsBusinessRuleError(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrOperationTimedOut):
		writeError(w, http.StatusGatewayTimeout, message, err)
	default:
		h.Log.Error("ledger operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
