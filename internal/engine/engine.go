// Package engine runs the reconcile cycle: it detects configuration
// drift, rebuilds and re-validates the weekly timetable, and drives due
// orders through placement. It owns all cross-cycle state via the
// Store; collaborators are injected behind small interfaces.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/calendar"
	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/internal/schedule"
	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/logger"
)

// Store is the persistence boundary. Every method that groups several
// bookkeeping changes (ReplaceState, PostponeOrder, CommitExecution)
// must apply them as one atomic unit.
type Store interface {
	Enabled(ctx context.Context) (bool, error)
	Disable(ctx context.Context) error

	State(ctx context.Context) ([]contracts.StatePair, error)
	ReplaceState(ctx context.Context, pairs []contracts.StatePair) error

	PutScheduledOrders(ctx context.Context, orders []contracts.ScheduledOrder) error
	ScheduledOrders(ctx context.Context) ([]contracts.ScheduledOrder, error)
	DueScheduledOrders(ctx context.Context, now time.Time) ([]contracts.ScheduledOrder, error)
	DeleteScheduledOrder(ctx context.Context, o contracts.ScheduledOrder) error
	DropScheduledOrders(ctx context.Context) error
	DropExpiredScheduledOrders(ctx context.Context, before time.Time) error

	Leftover(ctx context.Context, ticker string) (decimal.Decimal, error)
	PostponeOrder(ctx context.Context, o contracts.ScheduledOrder) error
	CommitExecution(ctx context.Context, exec contracts.ExecutedOrder, o contracts.ScheduledOrder) error
}

// MarketData supplies the pie composition and the metadata needed to
// plan around market hours.
type MarketData interface {
	FindPie(ctx context.Context, name string) (*contracts.Pie, error)
	Instruments(ctx context.Context) (map[string]contracts.InstrumentMeta, error)
	Venues(ctx context.Context) ([]contracts.VenueCalendar, error)
}

// Broker places orders. PlaceOrder reports funding problems through
// the result status and session loss through contracts.ErrSessionExpired.
type Broker interface {
	PendingOrders(ctx context.Context) ([]contracts.PendingOrder, error)
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, ticker, currency string, amount decimal.Decimal) (contracts.PlaceResult, error)
}

// Notifier delivers human-facing messages. Best effort; a failed send
// must never abort the engine's own bookkeeping.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Engine wires the planning components and the execution coordinator
// into the once-per-tick reconcile cycle.
type Engine struct {
	store     Store
	market    MarketData
	builder   *schedule.Builder
	validator *schedule.Validator
	coord     *Coordinator
	cfg       config.InvestConfig
	mode      string
	log       *logger.Logger
}

// New creates the engine. mode is the broker environment (live or
// demo); it is part of the drift snapshot because live and demo
// timetables must never mix.
func New(store Store, market MarketData, broker Broker, notify Notifier, builder *schedule.Builder, cfg config.InvestConfig, mode string, log *logger.Logger) *Engine {
	return &Engine{
		store:     store,
		market:    market,
		builder:   builder,
		validator: schedule.NewValidator(log),
		coord:     NewCoordinator(store, broker, notify, cfg, log),
		cfg:       cfg,
		mode:      mode,
		log:       log,
	}
}

// ReconcileCycle is the single entry point, invoked once per tick.
//
// Order of operations: the enabled gate, drift detection against the
// persisted snapshot, expiry of orders that were missed for more than
// one period, calendar re-validation of the persisted timetable, a
// rebuild when no timetable is left, and finally due-order execution.
// contracts.ErrSessionExpired propagates to the caller unmodified.
func (e *Engine) ReconcileCycle(ctx context.Context, now time.Time) error {
	enabled, err := e.store.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read enabled flag: %w", err)
	}
	if !enabled {
		// While disabled the timetable must stay empty, otherwise
		// re-enabling would fire a backlog of stale orders at once.
		e.log.Info("Engine disabled, clearing timetable")
		return e.store.DropScheduledOrders(ctx)
	}

	pie, err := e.market.FindPie(ctx, e.cfg.PieName)
	if err != nil {
		return err
	}
	if pie == nil {
		e.log.WithField("pie", e.cfg.PieName).Warn("Tracked pie not found, nothing to schedule")
		return nil
	}

	current := BuildState(e.mode, e.cfg, pie)
	persisted, err := e.store.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state snapshot: %w", err)
	}
	if !statesEqual(current, persisted) {
		e.log.Info("Configuration drift detected, replacing snapshot and wiping timetable")
		if err := e.store.ReplaceState(ctx, current); err != nil {
			return fmt.Errorf("failed to replace state snapshot: %w", err)
		}
	}

	// Orders due for longer than the grace window were missed while the
	// process was down; executing them late would bunch purchases.
	if err := e.store.DropExpiredScheduledOrders(ctx, now.Add(-e.cfg.ExpiredGrace)); err != nil {
		return fmt.Errorf("failed to drop expired orders: %w", err)
	}

	instruments, byTicker, err := collectInstruments(ctx, e.market, pie)
	if err != nil {
		return err
	}

	orders, err := e.store.ScheduledOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load timetable: %w", err)
	}
	if len(orders) > 0 && !e.validator.Validate(orders, byTicker) {
		e.log.Warn("Persisted timetable no longer matches venue calendars, wiping")
		if err := e.store.DropScheduledOrders(ctx); err != nil {
			return fmt.Errorf("failed to wipe invalid timetable: %w", err)
		}
		orders = nil
	}

	if len(orders) == 0 {
		built, err := e.builder.Build(instruments, now)
		if err != nil {
			return err
		}
		if err := e.store.PutScheduledOrders(ctx, built); err != nil {
			return fmt.Errorf("failed to persist timetable: %w", err)
		}
		e.log.WithFields(map[string]interface{}{
			"orders":      len(built),
			"instruments": len(instruments),
		}).Info("Built new timetable")
	}

	return e.coord.ExecuteDue(ctx, now)
}

// PlanOrders fetches the pie and metadata and builds the timetable a
// rebuild would produce right now, without touching any store. Used by
// the dry-run CLI command.
func PlanOrders(ctx context.Context, market MarketData, builder *schedule.Builder, cfg config.InvestConfig, now time.Time) ([]contracts.ScheduledOrder, error) {
	pie, err := market.FindPie(ctx, cfg.PieName)
	if err != nil {
		return nil, err
	}
	if pie == nil {
		return nil, fmt.Errorf("pie %q not found", cfg.PieName)
	}

	instruments, _, err := collectInstruments(ctx, market, pie)
	if err != nil {
		return nil, err
	}
	return builder.Build(instruments, now)
}

// collectInstruments joins the pie composition with instrument and
// venue metadata. The second return value keys each instrument's
// calendar by ticker for the validator.
func collectInstruments(ctx context.Context, market MarketData, pie *contracts.Pie) ([]contracts.PlannedInstrument, map[string]*contracts.VenueCalendar, error) {
	venues, err := market.Venues(ctx)
	if err != nil {
		return nil, nil, err
	}
	index, err := calendar.BuildIndex(venues)
	if err != nil {
		return nil, nil, err
	}

	metas, err := market.Instruments(ctx)
	if err != nil {
		return nil, nil, err
	}

	instruments := make([]contracts.PlannedInstrument, 0, len(pie.Slices))
	byTicker := make(map[string]*contracts.VenueCalendar, len(pie.Slices))
	for _, slice := range pie.Slices {
		meta, ok := metas[slice.Ticker]
		if !ok {
			return nil, nil, fmt.Errorf("pie instrument %s has no metadata", slice.Ticker)
		}
		cal, ok := index[meta.VenueID]
		if !ok {
			return nil, nil, fmt.Errorf("instrument %s references unknown venue %d", slice.Ticker, meta.VenueID)
		}

		instruments = append(instruments, contracts.PlannedInstrument{
			Ticker:   slice.Ticker,
			Calendar: cal,
			Currency: meta.Currency,
			Name:     meta.Name,
			Weight:   slice.Weight,
		})
		byTicker[slice.Ticker] = cal
	}

	return instruments, byTicker, nil
}
