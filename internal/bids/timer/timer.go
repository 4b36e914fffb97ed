// Package timer holds the bid window arithmetic. All comparisons treat the
// expiry instant itself as expired, so a bid whose window closes exactly now
// can no longer be accepted.
package timer

import (
	"time"

	"fixly/pkg/model"
)

// DefaultWindow is the fallback bid window applied when a stored bid
// carries no explicit expiry.
const DefaultWindow = 30 * time.Minute

// ExpiryOf returns the instant a bid stops being acceptable. A zero ExpiresAt
// on a stored bid is a data defect; fall back to CreatedAt plus the window so
// the bid still ages out instead of living forever.
func ExpiryOf(bid *model.Bid, window time.Duration) time.Time {
	if bid.ExpiresAt.IsZero() {
		return bid.CreatedAt.Add(window)
	}
	return bid.ExpiresAt
}

// Expired reports whether the bid's window has closed at the given instant.
// A missing expiry reads as CreatedAt plus DefaultWindow, never as expired
// on arrival.
func Expired(bid *model.Bid, now time.Time) bool {
	return !now.Before(ExpiryOf(bid, DefaultWindow))
}

// Remaining returns how long the bid stays acceptable, never negative.
func Remaining(bid *model.Bid, now time.Time) time.Duration {
	if Expired(bid, now) {
		return 0
	}
	return ExpiryOf(bid, DefaultWindow).Sub(now)
}

// NearExpiry reports whether a still-live bid is inside the warning threshold
// of its window. Expired bids are not "near" expiry, they are past it.
func NearExpiry(bid *model.Bid, now time.Time, threshold time.Duration) bool {
	if Expired(bid, now) {
		return false
	}
	return Remaining(bid, now) <= threshold
}
