package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/internal/schedule"
	"github.com/wonny/autoinvest/internal/store"
	"github.com/wonny/autoinvest/pkg/logger"
)

var cycleNow = time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)

type fakeMarket struct {
	pie         *contracts.Pie
	instruments map[string]contracts.InstrumentMeta
	venues      []contracts.VenueCalendar
}

func (m *fakeMarket) FindPie(ctx context.Context, name string) (*contracts.Pie, error) {
	if m.pie != nil && m.pie.Name == name {
		return m.pie, nil
	}
	return nil, nil
}

func (m *fakeMarket) Instruments(ctx context.Context) (map[string]contracts.InstrumentMeta, error) {
	return m.instruments, nil
}

func (m *fakeMarket) Venues(ctx context.Context) ([]contracts.VenueCalendar, error) {
	return m.venues, nil
}

// testMarket tracks two always-open US instruments on venue 71.
func testMarket() *fakeMarket {
	return &fakeMarket{
		pie: &contracts.Pie{
			Name: "autoinvest",
			Slices: []contracts.PieSlice{
				{Ticker: "AAPL_US_EQ", Weight: 0.6},
				{Ticker: "MSFT_US_EQ", Weight: 0.4},
			},
		},
		instruments: map[string]contracts.InstrumentMeta{
			"AAPL_US_EQ": {Ticker: "AAPL_US_EQ", VenueID: 71, Currency: "USD", Name: "Apple"},
			"MSFT_US_EQ": {Ticker: "MSFT_US_EQ", VenueID: 71, Currency: "USD", Name: "Microsoft"},
		},
		venues: []contracts.VenueCalendar{
			{ID: 71, Events: []contracts.TimeEvent{
				{Date: cycleNow.Add(-30 * 24 * time.Hour), Type: contracts.EventOpen},
			}},
		},
	}
}

func newTestEngine(t *testing.T, mem *store.Memory, market *fakeMarket, broker *fakeBroker, notify *fakeNotifier) *Engine {
	t.Helper()

	cfg := coordConfig()
	cfg.PieName = "autoinvest"
	builder := schedule.NewBuilder(cfg.WeeklyAmount, cfg.Period, rand.New(rand.NewSource(1)))
	return New(mem, market, broker, notify, builder, cfg, "live", logger.NewNop())
}

func TestReconcileCycle_BuildsTimetableOnFirstRun(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	eng := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))

	orders, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	// 168 hourly slots per instrument over the 7-day horizon.
	assert.Len(t, orders, 336)

	state, err := mem.State(ctx)
	require.NoError(t, err)
	assert.True(t, statesEqual(state, BuildState("live", eng.cfg, testMarket().pie)))

	// Nothing was due yet; the first slot is one period ahead.
	assert.Empty(t, broker.placed)
}

func TestReconcileCycle_StableConfigKeepsTimetable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	eng := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))
	first, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow.Add(time.Minute)))
	second, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReconcileCycle_BudgetDriftForcesRebuild(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	eng := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))
	before, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)

	changed := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})
	changed.cfg.WeeklyAmount = decimal.RequireFromString("1300")
	changed.builder = schedule.NewBuilder(changed.cfg.WeeklyAmount, changed.cfg.Period, rand.New(rand.NewSource(1)))

	require.NoError(t, changed.ReconcileCycle(ctx, cycleNow))
	after, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	assert.False(t, before[0].Amount.Equal(after[0].Amount))

	state, err := mem.State(ctx)
	require.NoError(t, err)
	assert.True(t, statesEqual(state, BuildState("live", changed.cfg, testMarket().pie)))
}

func TestReconcileCycle_DisabledClearsTimetable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	eng := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))
	require.NoError(t, mem.Disable(ctx))

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow.Add(time.Minute)))

	orders, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, broker.placed)
}

func TestReconcileCycle_MissingPieIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	market := testMarket()
	market.pie = nil
	eng := newTestEngine(t, mem, market, &fakeBroker{place: placeOK}, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))

	orders, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestReconcileCycle_CalendarDriftWipesAndRebuilds(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	market := testMarket()
	eng := newTestEngine(t, mem, market, broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))
	before, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// The venue now reports a closed stretch spanning part of the
	// persisted timetable.
	market.venues = []contracts.VenueCalendar{
		{ID: 71, Events: []contracts.TimeEvent{
			{Date: cycleNow.Add(-30 * 24 * time.Hour), Type: contracts.EventOpen},
			{Date: cycleNow.Add(time.Hour), Type: contracts.EventClose},
			{Date: cycleNow.Add(48 * time.Hour), Type: contracts.EventOpen},
		}},
	}

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow.Add(time.Minute)))

	after, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, after)
	assert.NotEqual(t, before, after)

	// No rebuilt order may sit inside the closed stretch.
	for _, o := range after {
		inClosed := o.ExecuteAt.After(cycleNow.Add(time.Hour)) && o.ExecuteAt.Before(cycleNow.Add(48*time.Hour))
		assert.False(t, inClosed, "order at %s falls into the closed stretch", o.ExecuteAt)
	}
}

func TestReconcileCycle_ExpiredOrdersDropped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	broker := &fakeBroker{place: placeOK}
	eng := newTestEngine(t, mem, testMarket(), broker, &fakeNotifier{})

	require.NoError(t, eng.ReconcileCycle(ctx, cycleNow))
	orders, err := mem.ScheduledOrders(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, orders)

	// Jump past the first few slots; anything due for more than one
	// period is treated as missed downtime, not executed late.
	later := cycleNow.Add(4 * time.Hour)
	require.NoError(t, eng.ReconcileCycle(ctx, later))

	// Only the slot inside the grace window fires; older slots are
	// dropped, not executed late.
	assert.Len(t, broker.placed, 2)
	for _, o := range mustScheduled(t, mem) {
		assert.False(t, o.ExecuteAt.Before(later.Add(-eng.cfg.ExpiredGrace)))
	}
}

func mustScheduled(t *testing.T, mem *store.Memory) []contracts.ScheduledOrder {
	t.Helper()
	orders, err := mem.ScheduledOrders(context.Background())
	require.NoError(t, err)
	return orders
}
