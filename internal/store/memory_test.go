package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoinvest/internal/contracts"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func order(ticker string, executeAt time.Time, amount string) contracts.ScheduledOrder {
	return contracts.ScheduledOrder{
		Ticker:    ticker,
		Currency:  "EUR",
		Amount:    d(amount),
		ExecuteAt: executeAt,
	}
}

func TestMemory_LeftoverRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.AddLeftover("T", d("3.33"))
	m.AddLeftover("T", d("1.67"))

	amount, err := m.Leftover(ctx, "T")
	require.NoError(t, err)
	assert.True(t, d("5.00").Equal(amount), "got %s", amount)

	// Leftover reads never clear.
	amount, err = m.Leftover(ctx, "T")
	require.NoError(t, err)
	assert.True(t, d("5.00").Equal(amount))

	// Unknown ticker reads as zero.
	amount, err = m.Leftover(ctx, "OTHER")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestMemory_AddLeftoverZeroIsNoop(t *testing.T) {
	m := NewMemory()
	m.AddLeftover("T", decimal.Zero)

	assert.Empty(t, m.leftovers)
}

func TestMemory_DueOrdersInExecutionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{
		order("B", now.Add(-time.Hour), "10"),
		order("A", now.Add(-time.Hour), "10"),
		order("C", now.Add(-2*time.Hour), "10"),
		order("D", now.Add(time.Hour), "10"),
	}))

	due, err := m.DueScheduledOrders(ctx, now)
	require.NoError(t, err)

	require.Len(t, due, 3)
	assert.Equal(t, "C", due[0].Ticker)
	assert.Equal(t, "A", due[1].Ticker)
	assert.Equal(t, "B", due[2].Ticker)
}

func TestMemory_PostponeOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	o := order("T", now, "50")
	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{o}))
	m.AddLeftover("T", d("5"))

	require.NoError(t, m.PostponeOrder(ctx, o))

	count, _ := m.ScheduledOrderCount(ctx)
	assert.Zero(t, count)

	// The scheduled amount joins the existing leftover.
	amount, _ := m.Leftover(ctx, "T")
	assert.True(t, d("55").Equal(amount), "got %s", amount)
}

func TestMemory_CommitExecution(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	o := order("T", now, "50")
	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{o}))
	m.AddLeftover("T", d("5"))

	exec := contracts.ExecutedOrder{Ticker: "T", Amount: d("55"), Currency: "EUR", CreatedAt: now}
	require.NoError(t, m.CommitExecution(ctx, exec, o))

	count, _ := m.ScheduledOrderCount(ctx)
	assert.Zero(t, count)

	amount, _ := m.Leftover(ctx, "T")
	assert.True(t, amount.IsZero(), "leftover cleared on commit")

	require.Len(t, m.ExecutedOrders(), 1)
	assert.Equal(t, "T", m.ExecutedOrders()[0].Ticker)
}

func TestMemory_ReplaceStateWipesTimetable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{order("T", now, "50")}))

	pairs := []contracts.StatePair{{Key: "weekly_amount", Value: "1250"}}
	require.NoError(t, m.ReplaceState(ctx, pairs))

	state, _ := m.State(ctx)
	assert.Equal(t, pairs, state)

	count, _ := m.ScheduledOrderCount(ctx)
	assert.Zero(t, count, "replacing state wipes the timetable")
}

func TestMemory_DropExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{
		order("OLD", now.Add(-3*time.Hour), "10"),
		order("DUE", now.Add(-30*time.Minute), "10"),
	}))

	require.NoError(t, m.DropExpiredScheduledOrders(ctx, now.Add(-time.Hour)))

	orders, _ := m.ScheduledOrders(ctx)
	require.Len(t, orders, 1)
	assert.Equal(t, "DUE", orders[0].Ticker)
}

func TestMemory_EnabledFlag(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	enabled, err := m.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, m.Disable(ctx))
	enabled, _ = m.Enabled(ctx)
	assert.False(t, enabled)

	require.NoError(t, m.Enable(ctx))
	enabled, _ = m.Enabled(ctx)
	assert.True(t, enabled)
}

func TestMemory_NextExecution(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	next, err := m.NextExecution(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.PutScheduledOrders(ctx, []contracts.ScheduledOrder{
		order("B", now.Add(2*time.Hour), "10"),
		order("A", now.Add(time.Hour), "10"),
	}))

	next, err = m.NextExecution(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(time.Hour), *next)
}
