package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"fixly/pkg/logger"
	"fixly/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "error",
		Format:  "json",
		Service: "test",
	})
}

func bookingEvent(t *testing.T, booking *model.Booking) *model.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(booking)
	require.NoError(t, err)

	return &model.ChangeEvent{
		ID:        "evt-" + booking.ID,
		Kind:      model.EventUpdate,
		Entity:    model.EntityBooking,
		EntityID:  booking.ID,
		BookingID: booking.ID,
		Seq:       booking.Seq,
		Payload:   payload,
	}
}

func bidEvent(t *testing.T, bid *model.Bid) *model.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(bid)
	require.NoError(t, err)

	return &model.ChangeEvent{
		ID:        "evt-" + bid.ID,
		Kind:      model.EventUpdate,
		Entity:    model.EntityBid,
		EntityID:  bid.ID,
		BookingID: bid.BookingID,
		Seq:       bid.Seq,
		Payload:   payload,
	}
}

func TestApplyEvent_FoldsBookingIntoView(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	booking := &model.Booking{ID: "b1", Status: model.StatusAwaitingBids, Seq: 1}
	applied, err := bridge.ApplyEvent(bookingEvent(t, booking))
	require.NoError(t, err)
	assert.True(t, applied)

	got := bridge.Store().Booking("b1")
	require.NotNil(t, got)
	assert.Equal(t, model.StatusAwaitingBids, got.Status)
	assert.Equal(t, int64(1), got.Seq)
}

func TestApplyEvent_DuplicateDeliveryIsIdempotent(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	booking := &model.Booking{ID: "b1", Status: model.StatusContractorAssigned, Seq: 2}
	event := bookingEvent(t, booking)

	applied, err := bridge.ApplyEvent(event)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = bridge.ApplyEvent(event)
	require.NoError(t, err)
	assert.False(t, applied, "replayed event must be dropped")

	assert.Equal(t, int64(2), bridge.Store().Booking("b1").Seq)
}

func TestApplyEvent_StaleEventDoesNotRegressView(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	newer := &model.Booking{ID: "b1", Status: model.StatusWorkInProgress, Seq: 4}
	older := &model.Booking{ID: "b1", Status: model.StatusContractorAssigned, Seq: 2}

	applied, err := bridge.ApplyEvent(bookingEvent(t, newer))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = bridge.ApplyEvent(bookingEvent(t, older))
	require.NoError(t, err)
	assert.False(t, applied, "out-of-order older event must be dropped")

	got := bridge.Store().Booking("b1")
	assert.Equal(t, model.StatusWorkInProgress, got.Status)
	assert.Equal(t, int64(4), got.Seq)
}

func TestApplyEvent_BidsTrackTheirBooking(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	bids := []*model.Bid{
		{ID: "bid1", BookingID: "b1", Status: model.BidPending, Seq: 1},
		{ID: "bid2", BookingID: "b1", Status: model.BidPending, Seq: 1},
		{ID: "bid3", BookingID: "b2", Status: model.BidPending, Seq: 1},
	}
	for _, bid := range bids {
		_, err := bridge.ApplyEvent(bidEvent(t, bid))
		require.NoError(t, err)
	}

	assert.Len(t, bridge.Store().BidsForBooking("b1"), 2)
	assert.Len(t, bridge.Store().BidsForBooking("b2"), 1)

	// Resolve one bid and fold the update in.
	resolved := &model.Bid{ID: "bid1", BookingID: "b1", Status: model.BidAccepted, Seq: 2}
	applied, err := bridge.ApplyEvent(bidEvent(t, resolved))
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, model.BidAccepted, bridge.Store().Bid("bid1").Status)
}

func TestApplyEvent_DeleteDropsBookingAndItsBids(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	booking := &model.Booking{ID: "b1", Status: model.StatusAwaitingBids, Seq: 1}
	_, err := bridge.ApplyEvent(bookingEvent(t, booking))
	require.NoError(t, err)

	bid := &model.Bid{ID: "bid1", BookingID: "b1", Status: model.BidPending, Seq: 1}
	_, err = bridge.ApplyEvent(bidEvent(t, bid))
	require.NoError(t, err)

	event := bookingEvent(t, booking)
	event.Kind = model.EventDelete
	applied, err := bridge.ApplyEvent(event)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Nil(t, bridge.Store().Booking("b1"))
	assert.Empty(t, bridge.Store().BidsForBooking("b1"))
}

func TestApplyEvent_UnknownEntityIsPermanent(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	_, err := bridge.ApplyEvent(&model.ChangeEvent{Entity: "schedule", EntityID: "x"})
	assert.Error(t, err)
}

func TestSnapshot_IsolatedFromLaterFolds(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	booking := &model.Booking{
		ID:     "b1",
		Status: model.StatusAwaitingBids,
		Seq:    1,
		Answers: map[string]string{
			"rooms": "3",
		},
	}
	_, err := bridge.ApplyEvent(bookingEvent(t, booking))
	require.NoError(t, err)

	snap := bridge.Snapshot()

	updated := &model.Booking{ID: "b1", Status: model.StatusContractorAssigned, Seq: 2}
	_, err = bridge.ApplyEvent(bookingEvent(t, updated))
	require.NoError(t, err)

	assert.Equal(t, model.StatusAwaitingBids, snap.Bookings["b1"].Status,
		"a taken snapshot must not observe later folds")
	assert.Equal(t, model.StatusContractorAssigned, bridge.Store().Booking("b1").Status)

	// Mutating the snapshot must not leak back into the store.
	snap.Bookings["b1"].Answers["rooms"] = "99"
	assert.NotEqual(t, "99", bridge.Store().Booking("b1").Answers["rooms"])
}

func TestSubscription_CloseReleasesExactlyOnce(t *testing.T) {
	bridge := NewBridge(NewSnapshotStore(), testLogger())

	var cancels int64
	done := make(chan struct{})
	close(done)

	sub := &Subscription{
		bridge: bridge,
		cancel: func() { atomic.AddInt64(&cancels, 1) },
		done:   done,
	}
	bridge.subs[sub] = struct{}{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&cancels), "cancel must run exactly once")
	assert.Empty(t, bridge.subs)
}
