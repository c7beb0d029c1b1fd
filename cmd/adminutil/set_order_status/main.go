package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/tasking/internal/config"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/ordering"
	"github.com/sudo-init-do/tasking/internal/store"
)

func main() {
	orderID := flag.String("order", "", "ID of the order to update")
	status := flag.String("status", "", "new status: received, accepted, rejected, completed or canceled")
	reasonCode := flag.String("reason-code", "", "optional machine-readable reason")
	reasonText := flag.String("reason-text", "", "optional human-readable reason")
	flag.Parse()

	if *orderID == "" || *status == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/set_order_status -order ID -status accepted")
	}

	cfg := config.Load()
	if cfg.StoreType == "memory" {
		log.Fatalf("STORE_TYPE must be postgres or mongo; the memory store lives inside the server process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer s.Close(ctx)

	st, err := ordering.NewManager(s).SetOrderStatus(ctx, *orderID, model.OrderStatusPayload{
		StatusCode: model.OrderStatusCode(*status),
		ReasonCode: *reasonCode,
		ReasonText: *reasonText,
	})
	if err != nil {
		log.Fatalf("failed to set order status: %v", err)
	}

	fmt.Printf("Order %s is now %s (%s).\n", *orderID, st.StatusCode, st.Timestamp.Format(time.RFC3339))
}
