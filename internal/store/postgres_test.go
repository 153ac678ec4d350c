package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoinvest/internal/contracts"
)

// setupPostgres connects to the test database and clears the engine
// tables. Requires DATABASE_URL and a schema from migrations/.
func setupPostgres(t *testing.T) *Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), connString)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)

	ctx := context.Background()
	for _, table := range []string{"scheduled_orders", "leftovers", "orders", "state", "messages"} {
		_, err := pool.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}

	return NewPostgres(pool)
}

func TestPostgres_LeftoverRoundTrip(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Leftovers grow only through postponed orders.
	first := order("T", now.Add(-2*time.Hour), "3.33")
	second := order("T", now.Add(-time.Hour), "1.67")
	require.NoError(t, s.PutScheduledOrders(ctx, []contracts.ScheduledOrder{first, second}))
	require.NoError(t, s.PostponeOrder(ctx, first))
	require.NoError(t, s.PostponeOrder(ctx, second))

	amount, err := s.Leftover(ctx, "T")
	require.NoError(t, err)
	assert.True(t, d("5.00").Equal(amount), "got %s", amount)

	count, err := s.ScheduledOrderCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgres_ReplaceStateWipesTimetable(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.PutScheduledOrders(ctx, []contracts.ScheduledOrder{
		order("T", now.Add(time.Hour), "50"),
	}))

	pairs := []contracts.StatePair{
		{Key: "pie_name", Value: "autoinvest"},
		{Key: "weekly_amount", Value: "1250"},
	}
	require.NoError(t, s.ReplaceState(ctx, pairs))

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, pairs, state)

	count, err := s.ScheduledOrderCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgres_CommitExecution(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	o := order("T", now.Add(-time.Minute), "50")
	require.NoError(t, s.PutScheduledOrders(ctx, []contracts.ScheduledOrder{o}))

	exec := contracts.ExecutedOrder{Ticker: "T", Amount: d("50"), Currency: "EUR", CreatedAt: now}
	require.NoError(t, s.CommitExecution(ctx, exec, o))

	count, err := s.ScheduledOrderCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	amount, err := s.Leftover(ctx, "T")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestPostgres_EnabledFlagDefaultsFalse(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, "DELETE FROM metadata WHERE key = 'enabled'")
	require.NoError(t, err)

	enabled, err := s.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled, "missing flag reads as disabled")

	require.NoError(t, s.Enable(ctx))
	enabled, err = s.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}
