package contracts

import "errors"

// ErrSessionExpired signals that the broker session is no longer valid.
// The cycle stops immediately; the outer process exits so a fresh
// session can be established before the next run.
var ErrSessionExpired = errors.New("broker session expired")

// PlaceStatus tags the outcome of a single placement attempt. Unknown
// broker responses are returned as plain errors, never absorbed into a
// status.
type PlaceStatus int

const (
	// PlaceOK - the broker accepted the order.
	PlaceOK PlaceStatus = iota

	// PlaceInsufficientFunds - the account wallet for the attempted
	// currency cannot cover the order; the caller may try another
	// currency.
	PlaceInsufficientFunds

	// PlaceBelowMinimum - the amount is under the broker's minimum
	// order value; the order should be postponed and re-bundled with
	// future leftover.
	PlaceBelowMinimum
)

func (s PlaceStatus) String() string {
	switch s {
	case PlaceOK:
		return "ok"
	case PlaceInsufficientFunds:
		return "insufficient_funds"
	case PlaceBelowMinimum:
		return "below_minimum"
	default:
		return "unknown"
	}
}

// PlaceResult is the tagged result of one placement attempt. Order is
// populated only when Status is PlaceOK.
type PlaceResult struct {
	Status PlaceStatus
	Order  ExecutedOrder
}
