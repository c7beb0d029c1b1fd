package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/db"
	"github.com/sudo-init-do/tasking/internal/store"
	"github.com/sudo-init-do/tasking/internal/store/storetest"
)

// TASKING_TEST_POSTGRES_DSN points at a database the test may wipe.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TASKING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKING_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.Init(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(ctx, `TRUNCATE order_statuses, orders, opportunity_search_records, opportunity_collections RESTART IDENTITY`)
		require.NoError(t, err)
		return store.NewPostgresStore(pool)
	})
}
