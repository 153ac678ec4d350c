package contracts

import "time"

// EventType classifies a market state-change event on a venue timeline.
type EventType string

const (
	EventOpen            EventType = "OPEN"
	EventClose           EventType = "CLOSE"
	EventPreMarketOpen   EventType = "PRE_MARKET_OPEN"
	EventAfterHoursOpen  EventType = "AFTER_HOURS_OPEN"
	EventAfterHoursClose EventType = "AFTER_HOURS_CLOSE"
)

// TimeEvent is a single dated market state change. Timestamps within one
// venue's timeline are strictly increasing; the producer guarantees the
// ordering.
type TimeEvent struct {
	Date time.Time `json:"date"`
	Type EventType `json:"type"`
}

// VenueCalendar is the ordered timeline of market events for a single
// trading venue. Rebuilt fresh each cycle from fetched metadata, never
// persisted.
type VenueCalendar struct {
	ID     int64       `json:"id"`
	Events []TimeEvent `json:"timeEvents"`
}

// IsOpen reports whether the event marks the regular session opening.
// Pre-market and after-hours openings do not count.
func (e TimeEvent) IsOpen() bool {
	return e.Type == EventOpen
}
