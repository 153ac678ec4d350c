package schedule

import (
	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/logger"
)

// Validator re-checks a previously persisted timetable against the
// current venue calendars, which may have shifted since the timetable
// was built.
type Validator struct {
	log *logger.Logger
}

// NewValidator creates a timetable validator.
func NewValidator(log *logger.Logger) *Validator {
	return &Validator{log: log}
}

// Validate reports whether every persisted order still falls into a
// regular open session. Calendars are keyed by ticker.
//
// A single order whose in-force event is not OPEN invalidates the whole
// batch: partial repair would require re-deriving allocation shares, so
// the caller wipes and rebuilds instead. An order whose ticker has no
// calendar anymore is treated the same way.
//
// An execute_at past the end of the calendar's covered range is left
// valid but logged; the next in-force check after a calendar refresh
// catches it.
func (v *Validator) Validate(orders []contracts.ScheduledOrder, calendars map[string]*contracts.VenueCalendar) bool {
	for _, o := range orders {
		cal, ok := calendars[o.Ticker]
		if !ok {
			v.log.WithField("ticker", o.Ticker).Warn("Scheduled order has no venue calendar anymore")
			return false
		}

		events := cal.Events
		bracketed := false
		for i := 0; i+1 < len(events); i++ {
			if events[i+1].Date.Before(o.ExecuteAt) {
				continue
			}
			if !events[i].IsOpen() {
				v.log.WithFields(map[string]interface{}{
					"ticker":     o.Ticker,
					"execute_at": o.ExecuteAt,
					"in_force":   events[i].Type,
				}).Info("Order scheduled outside open session")
				return false
			}
			bracketed = true
			break
		}

		if !bracketed {
			v.log.WithFields(map[string]interface{}{
				"ticker":     o.Ticker,
				"execute_at": o.ExecuteAt,
			}).Warn("Order past calendar coverage, keeping it")
		}
	}

	return true
}
