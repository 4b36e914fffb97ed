package stage

import (
	"testing"

	"fixly/pkg/model"
)

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		name    string
		from    model.BookingStatus
		to      model.BookingStatus
		allowed bool
	}{
		{"awaiting to assigned", model.StatusAwaitingBids, model.StatusContractorAssigned, true},
		{"assigned to arriving", model.StatusContractorAssigned, model.StatusContractorArriving, true},
		{"arriving to in progress", model.StatusContractorArriving, model.StatusWorkInProgress, true},
		{"in progress to completed", model.StatusWorkInProgress, model.StatusWorkCompleted, true},
		{"completed to paid", model.StatusWorkCompleted, model.StatusPaid, true},
		{"skip a stage", model.StatusAwaitingBids, model.StatusContractorArriving, false},
		{"skip to paid", model.StatusContractorAssigned, model.StatusPaid, false},
		{"backwards", model.StatusWorkInProgress, model.StatusContractorArriving, false},
		{"same status", model.StatusWorkInProgress, model.StatusWorkInProgress, false},
		{"cancel from awaiting", model.StatusAwaitingBids, model.StatusCancelled, true},
		{"cancel from in progress", model.StatusWorkInProgress, model.StatusCancelled, true},
		{"cancel from completed", model.StatusWorkCompleted, model.StatusCancelled, true},
		{"cancel a paid booking", model.StatusPaid, model.StatusCancelled, false},
		{"cancel a cancelled booking", model.StatusCancelled, model.StatusCancelled, false},
		{"advance out of paid", model.StatusPaid, model.StatusContractorAssigned, false},
		{"advance out of cancelled", model.StatusCancelled, model.StatusContractorAssigned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvance(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestNext_EndOfSequence(t *testing.T) {
	if _, ok := Next(model.StatusPaid); ok {
		t.Error("Next(paid) should have no successor")
	}
	if _, ok := Next(model.StatusCancelled); ok {
		t.Error("Next(cancelled) should have no successor")
	}

	next, ok := Next(model.StatusAwaitingBids)
	if !ok || next != model.StatusContractorAssigned {
		t.Errorf("Next(awaiting_bids) = %s, %v; want contractor_assigned, true", next, ok)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		status  model.BookingStatus
		payment model.PaymentState
		want    string
	}{
		{model.StatusAwaitingBids, model.PaymentUnpaid, "Finding contractors"},
		{model.StatusContractorAssigned, model.PaymentUnpaid, "Contractor assigned"},
		{model.StatusContractorArriving, model.PaymentUnpaid, "Contractor on the way"},
		{model.StatusWorkInProgress, model.PaymentUnpaid, "Work in progress"},
		{model.StatusWorkCompleted, model.PaymentUnpaid, "Awaiting payment"},
		{model.StatusPaid, model.PaymentPaid, "Completed & Paid"},
		{model.StatusCancelled, model.PaymentUnpaid, "Cancelled"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := Display(tt.status, tt.payment); got != tt.want {
				t.Errorf("Display(%s, %s) = %q, want %q", tt.status, tt.payment, got, tt.want)
			}
		})
	}
}

// A paid payment state wins over a status that has not caught up yet.
func TestDisplay_PaidPaymentForcesPaidStage(t *testing.T) {
	got := Display(model.StatusWorkCompleted, model.PaymentPaid)
	if got != "Completed & Paid" {
		t.Errorf("Display(work_completed, paid) = %q, want %q", got, "Completed & Paid")
	}
}
