// Package schedule turns a weighted instrument list and venue calendars
// into the week's timetable of sized purchase orders, and re-checks a
// persisted timetable against drifted calendars.
package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/contracts"
)

// Horizon is the scheduling window covered by one timetable.
const Horizon = 7 * 24 * time.Hour

// ErrEmptyScheduleWindow means the period is too large for even one
// candidate instant to fit into the horizon. Configuration error, not
// retried.
var ErrEmptyScheduleWindow = errors.New("no execution slot fits the horizon, adjust the period")

// UnschedulableInstrumentError means an instrument's venue is never open
// at any candidate instant. The whole batch fails; a pie is never
// partially scheduled.
type UnschedulableInstrumentError struct {
	Ticker string
	Name   string
}

func (e *UnschedulableInstrumentError) Error() string {
	return fmt.Sprintf("no open-market slot for %s (%s) within the horizon", e.Name, e.Ticker)
}

// Builder produces the weekly timetable. The random source is injected
// so tests can pin the jitter.
type Builder struct {
	weekly decimal.Decimal // budget per horizon, master currency
	period time.Duration
	rng    *rand.Rand
}

// NewBuilder creates a timetable builder.
func NewBuilder(weekly decimal.Decimal, period time.Duration, rng *rand.Rand) *Builder {
	return &Builder{
		weekly: weekly,
		period: period,
		rng:    rng,
	}
}

// Build turns the instrument list into scheduled orders for the window
// (now, now+Horizon].
//
//  1. Candidate instants step by period from now+period, each jittered
//     forward by a uniform offset in [0, period/6) so instruments do
//     not fire at identical timestamps while never crossing into the
//     next nominal slot.
//  2. Per instrument, only candidates whose in-force calendar event is
//     a regular-session OPEN survive.
//  3. weekly*weight is split evenly across the surviving instants, each
//     order rounded to cents independently.
//
// The result is sorted by (execute_at, ticker) for deterministic
// persistence.
func (b *Builder) Build(instruments []contracts.PlannedInstrument, now time.Time) ([]contracts.ScheduledOrder, error) {
	until := now.Add(Horizon)

	var candidates []time.Time
	for t := now.Add(b.period); !t.After(until); t = t.Add(b.period) {
		candidates = append(candidates, t.Add(b.jitter()))
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyScheduleWindow
	}

	var res []contracts.ScheduledOrder

	for _, inst := range instruments {
		events := inst.Calendar.Events
		eventIdx := 0

		var instTimes []time.Time
		for _, orderTime := range candidates {
			for eventIdx+1 < len(events) && events[eventIdx+1].Date.Before(orderTime) {
				eventIdx++
			}
			if len(events) == 0 || !events[eventIdx].Date.Before(orderTime) {
				// The calendar must cover the full horizon; a candidate
				// with no preceding event breaks the producer contract.
				return nil, fmt.Errorf("venue calendar for %s does not cover %s", inst.Ticker, orderTime)
			}
			if !events[eventIdx].IsOpen() {
				continue
			}
			instTimes = append(instTimes, orderTime)
		}

		if len(instTimes) == 0 {
			return nil, &UnschedulableInstrumentError{Ticker: inst.Ticker, Name: inst.Name}
		}

		total := b.weekly.Mul(decimal.NewFromFloat(inst.Weight))
		perOrder := total.Div(decimal.NewFromInt(int64(len(instTimes)))).Round(2)

		for _, t := range instTimes {
			res = append(res, contracts.ScheduledOrder{
				Ticker:    inst.Ticker,
				Currency:  inst.Currency,
				Amount:    perOrder,
				ExecuteAt: t,
			})
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].ExecuteAt.Equal(res[j].ExecuteAt) {
			return res[i].ExecuteAt.Before(res[j].ExecuteAt)
		}
		return res[i].Ticker < res[j].Ticker
	})

	return res, nil
}

// jitter draws a uniform offset in [0, period/6). The bound keeps a
// jittered candidate inside its own nominal slot.
func (b *Builder) jitter() time.Duration {
	return time.Duration(b.rng.Float64() * float64(b.period) / 6)
}
