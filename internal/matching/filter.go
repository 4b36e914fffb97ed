// Package matching decides which open bookings a contractor may bid on.
// Pure functions, no storage access; callers supply the contractor's bid
// history.
package matching

import (
	"fixly/pkg/model"
	"fixly/pkg/sanitizer"
)

// Contractor is the subset of a contractor profile the filter needs.
type Contractor struct {
	ID              string
	ServiceCategory string
	Tier            model.Tier
}

// History records the contractor's prior involvement with bookings. A
// booking appears in Bid once the contractor has any bid on it, resolved or
// not, and in RejectedOn once the customer has declined one of their bids.
type History struct {
	Bid        map[string]bool
	RejectedOn map[string]bool
}

// Eligible reports whether the contractor may bid on the booking. Tiers do
// not mix: standard contractors see standard postings, priority contractors
// see only priority postings.
func Eligible(booking *model.Booking, contractor Contractor, history History) bool {
	if !booking.OpenForBidding() {
		return false
	}

	if sanitizer.NormalizeCategory(contractor.ServiceCategory) != booking.ServiceCategory {
		return false
	}

	// "Open" postings are the standard-tier pool: a standard contractor sees
	// those and nothing else, a priority contractor sees only priority
	// postings. The tiers never mix.
	switch contractor.Tier {
	case model.TierStandard:
		if booking.Tier != model.TierStandard {
			return false
		}
	case model.TierPriority:
		if booking.Tier != model.TierPriority {
			return false
		}
	default:
		return false
	}

	if history.Bid[booking.ID] || history.RejectedOn[booking.ID] {
		return false
	}

	return true
}

// Filter returns the bookings the contractor may bid on, preserving order.
func Filter(bookings []*model.Booking, contractor Contractor, history History) []*model.Booking {
	eligible := make([]*model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if Eligible(b, contractor, history) {
			eligible = append(eligible, b)
		}
	}
	return eligible
}

// HistoryOf builds a History from the contractor's bids.
func HistoryOf(contractorID string, bids []*model.Bid) History {
	h := History{
		Bid:        make(map[string]bool),
		RejectedOn: make(map[string]bool),
	}
	for _, b := range bids {
		if b.ContractorID != contractorID {
			continue
		}
		h.Bid[b.BookingID] = true
		if b.Status == model.BidRejected {
			h.RejectedOn[b.BookingID] = true
		}
	}
	return h
}
