package matching

import (
	"testing"

	"fixly/pkg/model"

	"github.com/stretchr/testify/assert"
)

func openBooking(id, category string, tier model.Tier) *model.Booking {
	return &model.Booking{
		ID:              id,
		ServiceCategory: category,
		Tier:            tier,
		Status:          model.StatusAwaitingBids,
	}
}

func TestEligible_TierMatrix(t *testing.T) {
	tests := []struct {
		name           string
		bookingTier    model.Tier
		contractorTier model.Tier
		eligible       bool
	}{
		{"standard sees standard", model.TierStandard, model.TierStandard, true},
		{"standard does not see priority", model.TierPriority, model.TierStandard, false},
		{"priority sees priority", model.TierPriority, model.TierPriority, true},
		{"priority does not see standard", model.TierStandard, model.TierPriority, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := openBooking("b1", "plumbing", tt.bookingTier)
			contractor := Contractor{ID: "c1", ServiceCategory: "plumbing", Tier: tt.contractorTier}

			assert.Equal(t, tt.eligible, Eligible(booking, contractor, History{}))
		})
	}
}

func TestEligible_CategoryMustMatch(t *testing.T) {
	booking := openBooking("b1", "plumbing", model.TierStandard)
	contractor := Contractor{ID: "c1", ServiceCategory: "electrical", Tier: model.TierStandard}

	assert.False(t, Eligible(booking, contractor, History{}))
}

// Contractor profiles carry human-entered categories; the filter normalizes
// them the same way booking intake does.
func TestEligible_CategoryNormalized(t *testing.T) {
	booking := openBooking("b1", "house_cleaning", model.TierStandard)
	contractor := Contractor{ID: "c1", ServiceCategory: "  House Cleaning ", Tier: model.TierStandard}

	assert.True(t, Eligible(booking, contractor, History{}))
}

func TestEligible_ClosedBookingsExcluded(t *testing.T) {
	contractor := Contractor{ID: "c1", ServiceCategory: "plumbing", Tier: model.TierStandard}

	for _, status := range []model.BookingStatus{
		model.StatusContractorAssigned,
		model.StatusWorkInProgress,
		model.StatusPaid,
		model.StatusCancelled,
	} {
		booking := openBooking("b1", "plumbing", model.TierStandard)
		booking.Status = status
		assert.False(t, Eligible(booking, contractor, History{}), "status %s should be excluded", status)
	}
}

func TestEligible_HistoryExclusions(t *testing.T) {
	booking := openBooking("b1", "plumbing", model.TierStandard)
	contractor := Contractor{ID: "c1", ServiceCategory: "plumbing", Tier: model.TierStandard}

	assert.False(t, Eligible(booking, contractor, History{Bid: map[string]bool{"b1": true}}),
		"already-bid booking should be excluded")
	assert.False(t, Eligible(booking, contractor, History{RejectedOn: map[string]bool{"b1": true}}),
		"rejected-on booking should be excluded")
	assert.True(t, Eligible(booking, contractor, History{Bid: map[string]bool{"b2": true}}),
		"history on other bookings should not exclude this one")
}

func TestFilter_PreservesOrder(t *testing.T) {
	bookings := []*model.Booking{
		openBooking("b1", "plumbing", model.TierStandard),
		openBooking("b2", "electrical", model.TierStandard),
		openBooking("b3", "plumbing", model.TierPriority),
		openBooking("b4", "plumbing", model.TierStandard),
	}
	contractor := Contractor{ID: "c1", ServiceCategory: "plumbing", Tier: model.TierStandard}

	got := Filter(bookings, contractor, History{})

	assert.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "b4", got[1].ID)
}

func TestHistoryOf(t *testing.T) {
	bids := []*model.Bid{
		{ID: "bid1", BookingID: "b1", ContractorID: "c1", Status: model.BidPending},
		{ID: "bid2", BookingID: "b2", ContractorID: "c1", Status: model.BidRejected},
		{ID: "bid3", BookingID: "b3", ContractorID: "other", Status: model.BidPending},
	}

	h := HistoryOf("c1", bids)

	assert.True(t, h.Bid["b1"])
	assert.True(t, h.Bid["b2"])
	assert.False(t, h.Bid["b3"], "other contractors' bids are not our history")
	assert.True(t, h.RejectedOn["b2"])
	assert.False(t, h.RejectedOn["b1"])
}
