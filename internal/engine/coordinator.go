package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/logger"
)

// Coordinator drives each due order through placement. Orders are
// processed one at a time in persisted sort order; pending broker
// orders are fetched once per run so every due order sees the same
// picture.
type Coordinator struct {
	store  Store
	broker Broker
	notify Notifier
	cfg    config.InvestConfig
	log    *logger.Logger
}

// NewCoordinator creates an execution coordinator.
func NewCoordinator(store Store, broker Broker, notify Notifier, cfg config.InvestConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		broker: broker,
		notify: notify,
		cfg:    cfg,
		log:    log,
	}
}

// ExecuteDue processes every scheduled order with execute_at <= now.
// contracts.ErrSessionExpired and unrecognized broker responses abort
// the run; funding problems are absorbed per order.
func (c *Coordinator) ExecuteDue(ctx context.Context, now time.Time) error {
	due, err := c.store.DueScheduledOrders(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due orders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	// Memoized across the run.
	var pending map[string][]time.Time

	for _, o := range due {
		leftover, err := c.store.Leftover(ctx, o.Ticker)
		if err != nil {
			return fmt.Errorf("failed to read leftover for %s: %w", o.Ticker, err)
		}
		effective := o.Amount.Add(leftover).Round(2)

		if pending == nil {
			pending, err = c.pendingByTicker(ctx)
			if err != nil {
				return err
			}
		}

		if createdAts := pending[o.Ticker]; len(createdAts) > 0 {
			if err := c.postponeDuplicate(ctx, o, effective, createdAts); err != nil {
				return err
			}
			continue
		}

		if err := c.execute(ctx, o, effective); err != nil {
			return err
		}
	}

	return nil
}

// execute attempts placement with currency fallback and settles the
// order's final state.
func (c *Coordinator) execute(ctx context.Context, o contracts.ScheduledOrder, effective decimal.Decimal) error {
	currencies := dedupe(append([]string{o.Currency}, c.cfg.CurrencyPriority...))

	for _, currency := range currencies {
		amount, err := c.broker.Convert(ctx, c.cfg.MasterCurrency, currency, effective)
		if err != nil {
			return err
		}

		res, err := c.broker.PlaceOrder(ctx, o.Ticker, currency, amount)
		if err != nil {
			return err
		}

		switch res.Status {
		case contracts.PlaceInsufficientFunds:
			continue

		case contracts.PlaceBelowMinimum:
			// The amount is carried forward and re-bundled with a
			// future slot for this ticker.
			if err := c.store.PostponeOrder(ctx, o); err != nil {
				return fmt.Errorf("failed to postpone %s: %w", o.Ticker, err)
			}
			c.log.WithFields(map[string]interface{}{
				"ticker": o.Ticker,
				"amount": effective.StringFixed(2),
			}).Info("Order below broker minimum, postponed")
			return nil

		case contracts.PlaceOK:
			return c.commit(ctx, res.Order, o, effective)

		default:
			return fmt.Errorf("unhandled placement status %s for %s", res.Status, o.Ticker)
		}
	}

	// SKIPPED: every wallet lacked funds. The leftover stays as is; the
	// schedule slot is spent either way and a human has to top up.
	c.log.WithFields(map[string]interface{}{
		"ticker":     o.Ticker,
		"amount":     effective.StringFixed(2),
		"currencies": currencies,
	}).Warn("Insufficient funds in every currency, order skipped")
	c.notify.Send(ctx, fmt.Sprintf(
		"Skipped %s: insufficient funds for %s %s in any of %s. Top up the account.",
		o.Ticker, effective.StringFixed(2), c.cfg.MasterCurrency, strings.Join(currencies, ", ")))

	if err := c.store.DeleteScheduledOrder(ctx, o); err != nil {
		return fmt.Errorf("failed to delete skipped order %s: %w", o.Ticker, err)
	}
	return nil
}

// commit records the execution atomically. A commit failure after the
// broker confirmed placement means money left the account without
// bookkeeping; the engine disables itself rather than risk placing the
// same order twice.
func (c *Coordinator) commit(ctx context.Context, exec contracts.ExecutedOrder, o contracts.ScheduledOrder, effective decimal.Decimal) error {
	if err := c.store.CommitExecution(ctx, exec, o); err != nil {
		c.log.WithError(err).WithField("ticker", o.Ticker).Error("Commit failed after confirmed placement, disabling")
		c.notify.Send(ctx, fmt.Sprintf(
			"CRITICAL: order for %s (%s %s) was placed but could not be recorded. Auto-invest is now disabled; reconcile the account manually.",
			o.Ticker, exec.Amount.StringFixed(2), exec.Currency))

		if disableErr := c.store.Disable(ctx); disableErr != nil {
			c.log.WithError(disableErr).Error("Failed to disable after commit failure")
		}
		return fmt.Errorf("commit failed after placement of %s: %w", o.Ticker, err)
	}

	c.log.WithFields(map[string]interface{}{
		"ticker":   o.Ticker,
		"amount":   exec.Amount.StringFixed(2),
		"currency": exec.Currency,
	}).Info("Order executed")
	return nil
}

// postponeDuplicate handles a ticker that still has an order pending on
// the broker side: the slot's money goes to leftover and the slot is
// dropped for this cycle.
func (c *Coordinator) postponeDuplicate(ctx context.Context, o contracts.ScheduledOrder, effective decimal.Decimal, createdAts []time.Time) error {
	if err := c.store.PostponeOrder(ctx, o); err != nil {
		return fmt.Errorf("failed to postpone %s behind pending order: %w", o.Ticker, err)
	}

	times := make([]string, 0, len(createdAts))
	for _, at := range createdAts {
		times = append(times, at.In(c.cfg.Timezone).Format("2006-01-02 15:04"))
	}

	c.log.WithFields(map[string]interface{}{
		"ticker":  o.Ticker,
		"amount":  effective.StringFixed(2),
		"pending": times,
	}).Warn("Order already pending at broker, postponed")
	c.notify.Send(ctx, fmt.Sprintf(
		"Postponed %s (%s %s): order already pending at the broker since %s.",
		o.Ticker, effective.StringFixed(2), c.cfg.MasterCurrency, strings.Join(times, ", ")))
	return nil
}

func (c *Coordinator) pendingByTicker(ctx context.Context) (map[string][]time.Time, error) {
	orders, err := c.broker.PendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending orders: %w", err)
	}

	byTicker := make(map[string][]time.Time, len(orders))
	for _, p := range orders {
		byTicker[p.Ticker] = append(byTicker[p.Ticker], p.CreatedAt)
	}
	return byTicker, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
