// Command seed loads a demo dataset into the cashbox database: the two
// registers and a handful of orders, including the classic 400/600 pair
// useful for trying out exact-amount transfers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atelier/cashbox/ledger"
	"github.com/atelier/cashbox/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "cashbox.db", "SQLite database path")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	for _, name := range []string{"front", "back"} {
		if _, err := store.CreateRegister(ctx, name); err != nil {
			log.Printf("register %s: %v (already seeded?)", name, err)
		}
	}

	base := time.Now().UTC().Add(-72 * time.Hour)
	seedOrders := []struct {
		register string
		amount   string
		state    ledger.OrderState
		notes    string
		offset   time.Duration
	}{
		{"front", "400.00", ledger.OrderCompleted, "demo order A", 0},
		{"front", "600.00", ledger.OrderCompleted, "demo order B", time.Hour},
		{"front", "125.50", ledger.OrderPending, "demo order C (pending)", 2 * time.Hour},
		{"back", "80.00", ledger.OrderCompleted, "demo order D", 3 * time.Hour},
	}

	for _, o := range seedOrders {
		order := ledger.Order{
			ID:        uuid.NewString(),
			Register:  o.register,
			Amount:    mustDecimal(o.amount),
			State:     o.state,
			Notes:     o.notes,
			CreatedAt: base.Add(o.offset),
		}
		if err := store.CreateOrder(ctx, order); err != nil {
			log.Fatalf("Failed to seed order: %v", err)
		}
		fmt.Printf("seeded order %s  %s  %s  %s\n", order.ID, order.Register, o.amount, o.state)
	}

	fmt.Println("done")
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("bad amount %q: %v", s, err)
	}
	return d
}
