// Package stage defines the booking fulfillment progression and the derived
// display stage. Status is the canonical value; the display stage is a pure
// function of status plus payment state, computed on every read and never
// stored, so the two can never drift apart.
package stage

import (
	"fixly/pkg/model"
)

// order is the fulfillment sequence. Transitions move to the immediate next
// entry only; cancellation is a side channel reachable from any non-terminal
// status.
var order = []model.BookingStatus{
	model.StatusAwaitingBids,
	model.StatusContractorAssigned,
	model.StatusContractorArriving,
	model.StatusWorkInProgress,
	model.StatusWorkCompleted,
	model.StatusPaid,
}

// Next returns the immediate successor of s, or false when s is the last
// ordered status, cancelled, or unknown.
func Next(s model.BookingStatus) (model.BookingStatus, bool) {
	for i, st := range order[:len(order)-1] {
		if st == s {
			return order[i+1], true
		}
	}
	return "", false
}

// CanAdvance reports whether from -> to is a legal transition: either the
// immediate next ordered status, or cancellation of a non-terminal booking.
func CanAdvance(from, to model.BookingStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == model.StatusCancelled {
		return true
	}
	next, ok := Next(from)
	return ok && next == to
}

// Index returns the position of s in the ordered sequence, -1 for cancelled
// or unknown.
func Index(s model.BookingStatus) int {
	for i, st := range order {
		if st == s {
			return i
		}
	}
	return -1
}

// Display maps the canonical status and payment state to the customer-facing
// stage label. A paid payment state forces the paid stage even when the
// status write is still propagating.
func Display(status model.BookingStatus, payment model.PaymentState) string {
	if payment == model.PaymentPaid {
		return "Completed & Paid"
	}

	switch status {
	case model.StatusAwaitingBids:
		return "Finding contractors"
	case model.StatusContractorAssigned:
		return "Contractor assigned"
	case model.StatusContractorArriving:
		return "Contractor on the way"
	case model.StatusWorkInProgress:
		return "Work in progress"
	case model.StatusWorkCompleted:
		return "Awaiting payment"
	case model.StatusPaid:
		return "Completed & Paid"
	case model.StatusCancelled:
		return "Cancelled"
	default:
		return string(status)
	}
}
