// Package calendar builds the per-venue event index the scheduler plans
// against.
package calendar

import (
	"fmt"

	"github.com/wonny/autoinvest/internal/contracts"
)

// BuildIndex maps venue id to its calendar. Pure, O(total events).
//
// Producers guarantee each timeline is sorted with strictly increasing
// timestamps; a violation is a contract breach and fails the whole
// build rather than producing a timetable from a garbled calendar.
func BuildIndex(venues []contracts.VenueCalendar) (map[int64]*contracts.VenueCalendar, error) {
	index := make(map[int64]*contracts.VenueCalendar, len(venues))

	for i := range venues {
		v := &venues[i]

		for j := 1; j < len(v.Events); j++ {
			if !v.Events[j-1].Date.Before(v.Events[j].Date) {
				return nil, fmt.Errorf("venue %d: events out of order at index %d (%s >= %s)",
					v.ID, j, v.Events[j-1].Date, v.Events[j].Date)
			}
		}

		if _, dup := index[v.ID]; dup {
			return nil, fmt.Errorf("venue %d: duplicate calendar", v.ID)
		}
		index[v.ID] = v
	}

	return index, nil
}
