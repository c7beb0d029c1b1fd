package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/tasking/internal/config"
	"github.com/sudo-init-do/tasking/internal/model"
	"github.com/sudo-init-do/tasking/internal/search"
	"github.com/sudo-init-do/tasking/internal/store"
)

// Moves a stuck opportunity search along, typically to failed or canceled.
func main() {
	recordID := flag.String("search", "", "ID of the opportunity search record")
	status := flag.String("status", "canceled", "new status: in_progress, failed or canceled")
	reasonCode := flag.String("reason-code", "operator", "machine-readable reason")
	reasonText := flag.String("reason-text", "", "human-readable reason")
	flag.Parse()

	if *recordID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/advance_search -search ID -status canceled")
	}
	code := model.OpportunitySearchStatusCode(*status)
	if code == model.SearchCompleted || !code.Valid() {
		log.Fatalf("status %q cannot be set by hand", *status)
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

	rec, err := search.NewEngine(s).Advance(ctx, *recordID, code, *reasonCode, *reasonText)
	if err != nil {
		log.Fatalf("failed to advance search: %v", err)
	}

	fmt.Printf("Search %s is now %s.\n", rec.ID, rec.Status.StatusCode)
}
