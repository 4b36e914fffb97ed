package realtime

import (
	"sync"

	"fixly/pkg/model"
)

// Snapshot is a point-in-time copy of the folded view. Slices and maps are
// deep-copied; mutating a snapshot never touches the store.
type Snapshot struct {
	Bookings map[string]*model.Booking
	Bids     map[string]*model.Bid
}

// SnapshotStore holds the local view the bridge folds change events into.
// Reads return copies, so callers can hold a snapshot across further folds.
type SnapshotStore struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	bids     map[string]*model.Bid
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		bookings: make(map[string]*model.Booking),
		bids:     make(map[string]*model.Bid),
	}
}

// Booking returns the stored booking by id, or nil.
func (s *SnapshotStore) Booking(id string) *model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBooking(s.bookings[id])
}

// Bid returns the stored bid by id, or nil.
func (s *SnapshotStore) Bid(id string) *model.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBid(s.bids[id])
}

// BidsForBooking returns every stored bid on the booking.
func (s *SnapshotStore) BidsForBooking(bookingID string) []*model.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []*model.Bid
	for _, b := range s.bids {
		if b.BookingID == bookingID {
			bids = append(bids, copyBid(b))
		}
	}
	return bids
}

// Snapshot returns a deep copy of the whole view. Pure read, no network.
func (s *SnapshotStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Bookings: make(map[string]*model.Booking, len(s.bookings)),
		Bids:     make(map[string]*model.Bid, len(s.bids)),
	}
	for id, b := range s.bookings {
		snap.Bookings[id] = copyBooking(b)
	}
	for id, b := range s.bids {
		snap.Bids[id] = copyBid(b)
	}
	return snap
}

// putBooking stores the booking if it is new or newer than the stored copy.
// Returns false when the event is stale and was dropped.
func (s *SnapshotStore) putBooking(booking *model.Booking) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.bookings[booking.ID]; ok && booking.Seq <= current.Seq {
		return false
	}
	s.bookings[booking.ID] = copyBooking(booking)
	return true
}

func (s *SnapshotStore) putBid(bid *model.Bid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.bids[bid.ID]; ok && bid.Seq <= current.Seq {
		return false
	}
	s.bids[bid.ID] = copyBid(bid)
	return true
}

// dropBooking removes a booking and its bids, used when a booking is deleted
// upstream.
func (s *SnapshotStore) dropBooking(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bookings, bookingID)
	for id, b := range s.bids {
		if b.BookingID == bookingID {
			delete(s.bids, id)
		}
	}
}

func copyBooking(b *model.Booking) *model.Booking {
	if b == nil {
		return nil
	}
	clone := *b
	if b.ScheduledAt != nil {
		at := *b.ScheduledAt
		clone.ScheduledAt = &at
	}
	if b.AssignedAt != nil {
		at := *b.AssignedAt
		clone.AssignedAt = &at
	}
	if b.Answers != nil {
		clone.Answers = make(map[string]string, len(b.Answers))
		for k, v := range b.Answers {
			clone.Answers[k] = v
		}
	}
	if b.ImageRefs != nil {
		clone.ImageRefs = append([]string(nil), b.ImageRefs...)
	}
	return &clone
}

func copyBid(b *model.Bid) *model.Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Materials != nil {
		clone.Materials = append([]model.Material(nil), b.Materials...)
	}
	return &clone
}
