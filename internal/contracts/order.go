package contracts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ScheduledOrder is one dated, sized purchase slot produced by the
// timetable builder. Identified by (Ticker, ExecuteAt); created in
// batches, deleted individually when executed or postponed, wiped in
// bulk when the timetable is invalidated. Never updated in place.
type ScheduledOrder struct {
	Ticker    string          `json:"ticker"`
	Currency  string          `json:"currency"` // instrument currency
	Amount    decimal.Decimal `json:"amount"`   // in master currency
	ExecuteAt time.Time       `json:"executeAt"`
}

func (o ScheduledOrder) String() string {
	return fmt.Sprintf("ScheduledOrder(ticker=%s, currency=%s, amount=%s, execute_at=%s)",
		o.Ticker, o.Currency, o.Amount.StringFixed(2),
		o.ExecuteAt.UTC().Truncate(time.Second).Format(time.RFC3339))
}

// ExecutedOrder is the append-only audit record of a confirmed
// placement. Amount and Currency are what the broker actually accepted,
// which may differ from the scheduled master-currency amount.
type ExecutedOrder struct {
	Ticker    string          `json:"code"`
	Amount    decimal.Decimal `json:"value"`
	Currency  string          `json:"currencyCode"`
	CreatedAt time.Time       `json:"created"`
}

// PendingOrder is an order still outstanding on the broker side.
type PendingOrder struct {
	Ticker    string    `json:"code"`
	CreatedAt time.Time `json:"created"`
}

// PlannedInstrument joins a pie slice with its instrument metadata and
// venue calendar. Built fresh per cycle, never persisted.
type PlannedInstrument struct {
	Ticker   string
	Calendar *VenueCalendar // shared with other instruments on the venue
	Currency string
	Name     string
	Weight   float64 // fraction of the weekly budget, (0, 1]
}

// PieSlice is one (ticker, weight) element of the tracked allocation.
type PieSlice struct {
	Ticker string
	Weight float64
}

// Pie is the tracked target allocation fetched from the portfolio
// source.
type Pie struct {
	Name   string
	Slices []PieSlice
}

// InstrumentMeta is the per-ticker metadata the engine needs to plan
// orders: which venue calendar applies and which currency the
// instrument trades in.
type InstrumentMeta struct {
	Ticker   string
	VenueID  int64
	Currency string
	Name     string
}

// StatePair is one element of the canonical configuration snapshot.
// Equal snapshots mean the persisted timetable is still valid with
// respect to its inputs; calendar drift is checked separately.
type StatePair struct {
	Key   string
	Value string
}
