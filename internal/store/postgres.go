// Package store is the durable bookkeeping boundary of the engine:
// scheduled orders, leftovers, executed-order audit rows, the canonical
// state snapshot, the enabled flag and the notification window.
//
// Every multi-row change the engine depends on (state replace + wipe,
// postpone, commit) runs inside a single transaction; partial writes of
// one of these units are never observable.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/contracts"
)

// Postgres is the production store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// PutScheduledOrders inserts a batch of scheduled orders.
func (s *Postgres) PutScheduledOrders(ctx context.Context, orders []contracts.ScheduledOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range orders {
		_, err := tx.Exec(ctx,
			`INSERT INTO scheduled_orders (ticker, currency, amount, execute_at)
			 VALUES ($1, $2, $3, $4)`,
			o.Ticker, o.Currency, o.Amount, o.ExecuteAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scheduled order %s: %w", o, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scheduled orders: %w", err)
	}

	return nil
}

// ScheduledOrders returns the whole persisted timetable in execution
// order.
func (s *Postgres) ScheduledOrders(ctx context.Context) ([]contracts.ScheduledOrder, error) {
	return s.queryOrders(ctx,
		`SELECT ticker, currency, amount, execute_at
		 FROM scheduled_orders
		 ORDER BY execute_at, ticker`)
}

// DueScheduledOrders returns orders whose execute_at has passed, in
// execution order.
func (s *Postgres) DueScheduledOrders(ctx context.Context, now time.Time) ([]contracts.ScheduledOrder, error) {
	return s.queryOrders(ctx,
		`SELECT ticker, currency, amount, execute_at
		 FROM scheduled_orders
		 WHERE execute_at <= $1
		 ORDER BY execute_at, ticker`, now)
}

func (s *Postgres) queryOrders(ctx context.Context, query string, args ...interface{}) ([]contracts.ScheduledOrder, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled orders: %w", err)
	}
	defer rows.Close()

	orders := make([]contracts.ScheduledOrder, 0)
	for rows.Next() {
		var o contracts.ScheduledOrder
		if err := rows.Scan(&o.Ticker, &o.Currency, &o.Amount, &o.ExecuteAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return orders, nil
}

// ScheduledOrderCount returns the number of persisted scheduled orders.
func (s *Postgres) ScheduledOrderCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(1) FROM scheduled_orders`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled orders: %w", err)
	}
	return count, nil
}

// NextExecution returns the earliest scheduled execute_at, or nil when
// the timetable is empty.
func (s *Postgres) NextExecution(ctx context.Context) (*time.Time, error) {
	var next *time.Time
	err := s.pool.QueryRow(ctx, `SELECT min(execute_at) FROM scheduled_orders`).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to query next execution: %w", err)
	}
	return next, nil
}

// DeleteScheduledOrder removes a single order by its (ticker,
// execute_at) identity.
func (s *Postgres) DeleteScheduledOrder(ctx context.Context, o contracts.ScheduledOrder) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM scheduled_orders WHERE ticker = $1 AND execute_at = $2`,
		o.Ticker, o.ExecuteAt,
	)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled order %s: %w", o, err)
	}
	return nil
}

// DropScheduledOrders wipes the whole timetable.
func (s *Postgres) DropScheduledOrders(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scheduled_orders`); err != nil {
		return fmt.Errorf("failed to drop scheduled orders: %w", err)
	}
	return nil
}

// DropExpiredScheduledOrders removes orders whose execute_at fell
// behind the grace window, so stale slots are not executed long after
// their time.
func (s *Postgres) DropExpiredScheduledOrders(ctx context.Context, before time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM scheduled_orders WHERE execute_at < $1`, before); err != nil {
		return fmt.Errorf("failed to drop expired scheduled orders: %w", err)
	}
	return nil
}

// Leftover returns the carried-forward amount for a ticker, zero when
// absent. It never clears: clearing happens only inside the commit
// transaction, so a crash between read and clear cannot lose money.
func (s *Postgres) Leftover(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM leftovers WHERE ticker = $1`, ticker).Scan(&amount)
	if err == pgx.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query leftover for %s: %w", ticker, err)
	}
	return amount, nil
}

// PostponeOrder carries the order's scheduled amount into the leftover
// ledger and removes the order, in one transaction. The pre-existing
// leftover row is untouched, so the next due order for the ticker picks
// up the full accumulated amount.
func (s *Postgres) PostponeOrder(ctx context.Context, o contracts.ScheduledOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := addLeftover(ctx, tx, o.Ticker, o.Amount); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM scheduled_orders WHERE ticker = $1 AND execute_at = $2`,
		o.Ticker, o.ExecuteAt,
	)
	if err != nil {
		return fmt.Errorf("failed to delete postponed order %s: %w", o, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit postpone for %s: %w", o, err)
	}

	return nil
}

// addLeftover accumulates into the ticker's leftover row. Zero amounts
// are a no-op.
func addLeftover(ctx context.Context, tx pgx.Tx, ticker string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO leftovers AS t (ticker, amount) VALUES ($1, $2)
		 ON CONFLICT (ticker) DO UPDATE SET amount = t.amount + $2`,
		ticker, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to add leftover for %s: %w", ticker, err)
	}
	return nil
}

// CommitExecution durably records a confirmed placement: appends the
// executed-order audit row, removes the scheduled order and clears the
// ticker's leftover, all in one transaction.
func (s *Postgres) CommitExecution(ctx context.Context, exec contracts.ExecutedOrder, o contracts.ScheduledOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (ticker, amount, currency, created_at)
		 VALUES ($1, $2, $3, $4)`,
		exec.Ticker, exec.Amount, exec.Currency, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert executed order for %s: %w", exec.Ticker, err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM scheduled_orders WHERE ticker = $1 AND execute_at = $2`,
		o.Ticker, o.ExecuteAt,
	)
	if err != nil {
		return fmt.Errorf("failed to delete executed scheduled order %s: %w", o, err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM leftovers WHERE ticker = $1`, o.Ticker)
	if err != nil {
		return fmt.Errorf("failed to clear leftover for %s: %w", o.Ticker, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit execution for %s: %w", o.Ticker, err)
	}

	return nil
}

// State returns the persisted configuration snapshot in key order.
func (s *Postgres) State(ctx context.Context) ([]contracts.StatePair, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	pairs := make([]contracts.StatePair, 0)
	for rows.Next() {
		var p contracts.StatePair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan state pair: %w", err)
		}
		pairs = append(pairs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pairs, nil
}

// ReplaceState atomically swaps the snapshot and wipes all scheduled
// orders. The timetable is a derived product of the snapshot; a new
// snapshot always invalidates it.
func (s *Postgres) ReplaceState(ctx context.Context, pairs []contracts.StatePair) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM state`); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}

	for _, p := range pairs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO state (key, value) VALUES ($1, $2)`, p.Key, p.Value); err != nil {
			return fmt.Errorf("failed to insert state pair %s: %w", p.Key, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM scheduled_orders`); err != nil {
		return fmt.Errorf("failed to wipe scheduled orders: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit state replace: %w", err)
	}

	return nil
}

// Enabled reports whether the engine may place orders.
func (s *Postgres) Enabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM metadata WHERE key = 'enabled'`).Scan(&enabled)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query enabled flag: %w", err)
	}
	return enabled, nil
}

// Enable turns the engine on.
func (s *Postgres) Enable(ctx context.Context) error {
	return s.setEnabled(ctx, true)
}

// Disable turns the engine off. Used both by operators and by the
// engine itself when bookkeeping cannot confirm a placement.
func (s *Postgres) Disable(ctx context.Context) error {
	return s.setEnabled(ctx, false)
}

func (s *Postgres) setEnabled(ctx context.Context, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metadata (key, value) VALUES ('enabled', $1)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	return nil
}

// RecentMessages returns notification texts sent since the given
// instant. Used to rate-limit and deduplicate outgoing notifications.
func (s *Postgres) RecentMessages(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT text FROM messages WHERE sent_at > $1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	texts := make([]string, 0)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		texts = append(texts, text)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return texts, nil
}

// RecordMessage records a sent notification and prunes entries older
// than the rate-limit window.
func (s *Postgres) RecordMessage(ctx context.Context, text string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (text, sent_at) VALUES ($1, $2)`, text, at); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE sent_at < $1`, at.Add(-time.Hour)); err != nil {
		return fmt.Errorf("failed to prune messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message record: %w", err)
	}

	return nil
}
