package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/contracts"
)

// Memory is an in-memory store with the same semantics as Postgres.
// Used in tests and dry runs; real deployments use Postgres.
type Memory struct {
	mu sync.Mutex

	enabled   bool
	state     []contracts.StatePair
	scheduled []contracts.ScheduledOrder
	leftovers map[string]decimal.Decimal
	executed  []contracts.ExecutedOrder
	messages  map[string]time.Time

	// FailCommits makes CommitExecution fail without writing, to
	// exercise the bookkeeping-inconsistency path.
	FailCommits bool
}

// NewMemory creates an enabled in-memory store.
func NewMemory() *Memory {
	return &Memory{
		enabled:   true,
		leftovers: make(map[string]decimal.Decimal),
		messages:  make(map[string]time.Time),
	}
}

// PutScheduledOrders inserts a batch of scheduled orders.
func (m *Memory) PutScheduledOrders(ctx context.Context, orders []contracts.ScheduledOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scheduled = append(m.scheduled, orders...)
	m.sortScheduledLocked()
	return nil
}

// ScheduledOrders returns the whole timetable in execution order.
func (m *Memory) ScheduledOrders(ctx context.Context) ([]contracts.ScheduledOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.ScheduledOrder, len(m.scheduled))
	copy(out, m.scheduled)
	return out, nil
}

// DueScheduledOrders returns orders due at or before now.
func (m *Memory) DueScheduledOrders(ctx context.Context, now time.Time) ([]contracts.ScheduledOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.ScheduledOrder, 0)
	for _, o := range m.scheduled {
		if !o.ExecuteAt.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ScheduledOrderCount returns the number of scheduled orders.
func (m *Memory) ScheduledOrderCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scheduled), nil
}

// NextExecution returns the earliest execute_at, nil when empty.
func (m *Memory) NextExecution(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.scheduled) == 0 {
		return nil, nil
	}
	next := m.scheduled[0].ExecuteAt
	return &next, nil
}

// DeleteScheduledOrder removes one order by (ticker, execute_at).
func (m *Memory) DeleteScheduledOrder(ctx context.Context, o contracts.ScheduledOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteScheduledLocked(o)
	return nil
}

// DropScheduledOrders wipes the timetable.
func (m *Memory) DropScheduledOrders(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = nil
	return nil
}

// DropExpiredScheduledOrders removes orders older than the grace cutoff.
func (m *Memory) DropExpiredScheduledOrders(ctx context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.scheduled[:0]
	for _, o := range m.scheduled {
		if !o.ExecuteAt.Before(before) {
			kept = append(kept, o)
		}
	}
	m.scheduled = kept
	return nil
}

// Leftover returns the carried amount for a ticker without clearing it.
func (m *Memory) Leftover(ctx context.Context, ticker string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount, ok := m.leftovers[ticker]; ok {
		return amount, nil
	}
	return decimal.Zero, nil
}

// AddLeftover accumulates into the ticker's leftover. Zero is a no-op.
// Exposed for test setup; the engine only grows leftovers through
// PostponeOrder.
func (m *Memory) AddLeftover(ticker string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLeftoverLocked(ticker, amount)
}

func (m *Memory) addLeftoverLocked(ticker string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	m.leftovers[ticker] = m.leftovers[ticker].Add(amount)
}

// PostponeOrder moves the order's amount into the leftover ledger and
// deletes the order, as one unit.
func (m *Memory) PostponeOrder(ctx context.Context, o contracts.ScheduledOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addLeftoverLocked(o.Ticker, o.Amount)
	m.deleteScheduledLocked(o)
	return nil
}

// CommitExecution appends the audit row, deletes the scheduled order
// and clears the leftover, as one unit.
func (m *Memory) CommitExecution(ctx context.Context, exec contracts.ExecutedOrder, o contracts.ScheduledOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCommits {
		return errors.New("store: commit failed")
	}

	m.executed = append(m.executed, exec)
	m.deleteScheduledLocked(o)
	delete(m.leftovers, o.Ticker)
	return nil
}

// ExecutedOrders returns the audit log. Test helper.
func (m *Memory) ExecutedOrders() []contracts.ExecutedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.ExecutedOrder, len(m.executed))
	copy(out, m.executed)
	return out
}

// State returns the persisted snapshot.
func (m *Memory) State(ctx context.Context) ([]contracts.StatePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.StatePair, len(m.state))
	copy(out, m.state)
	return out, nil
}

// ReplaceState swaps the snapshot and wipes the timetable atomically.
func (m *Memory) ReplaceState(ctx context.Context, pairs []contracts.StatePair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = make([]contracts.StatePair, len(pairs))
	copy(m.state, pairs)
	m.scheduled = nil
	return nil
}

// Enabled reports whether the engine may place orders.
func (m *Memory) Enabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

// Enable turns the engine on.
func (m *Memory) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	return nil
}

// Disable turns the engine off.
func (m *Memory) Disable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	return nil
}

// RecentMessages returns texts recorded after the given instant.
func (m *Memory) RecentMessages(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0)
	for text, at := range m.messages {
		if at.After(since) {
			out = append(out, text)
		}
	}
	return out, nil
}

// RecordMessage records a sent notification.
func (m *Memory) RecordMessage(ctx context.Context, text string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[text] = at
	return nil
}

func (m *Memory) deleteScheduledLocked(o contracts.ScheduledOrder) {
	kept := m.scheduled[:0]
	for _, cur := range m.scheduled {
		if cur.Ticker == o.Ticker && cur.ExecuteAt.Equal(o.ExecuteAt) {
			continue
		}
		kept = append(kept, cur)
	}
	m.scheduled = kept
}

func (m *Memory) sortScheduledLocked() {
	sort.Slice(m.scheduled, func(i, j int) bool {
		a, b := m.scheduled[i], m.scheduled[j]
		if !a.ExecuteAt.Equal(b.ExecuteAt) {
			return a.ExecuteAt.Before(b.ExecuteAt)
		}
		return a.Ticker < b.Ticker
	})
}
