package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"fixly/pkg/kafka"
	"fixly/pkg/logger"
	"fixly/pkg/model"
)

// Bridge folds change events from the booking and bid feeds into a local
// snapshot. Events arrive at least once and possibly out of order; the
// per-entity Seq guard makes folding idempotent, so replays and stale
// deliveries are dropped rather than applied.
type Bridge struct {
	store *SnapshotStore
	log   *logger.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewBridge(store *SnapshotStore, log *logger.Logger) *Bridge {
	return &Bridge{
		store: store,
		log:   log,
		subs:  make(map[*Subscription]struct{}),
	}
}

// Snapshot returns the latest folded view.
func (b *Bridge) Snapshot() Snapshot {
	return b.store.Snapshot()
}

// Store exposes targeted reads against the folded view.
func (b *Bridge) Store() *SnapshotStore {
	return b.store
}

// ApplyEvent folds one change event into the view. Returns true when the
// event advanced the view, false when it was stale or a duplicate.
func (b *Bridge) ApplyEvent(event *model.ChangeEvent) (bool, error) {
	switch event.Entity {
	case model.EntityBooking:
		// A deleted booking takes its bids with it. Booking ids are never
		// reused, so the drop needs no seq comparison.
		if event.Kind == model.EventDelete {
			b.store.dropBooking(event.BookingID)
			return true, nil
		}

		var booking model.Booking
		if err := decodePayload(event.Payload, &booking); err != nil {
			return false, err
		}
		applied := b.store.putBooking(&booking)
		if !applied {
			b.log.Debug("Dropped stale booking event",
				"entity_id", event.EntityID, "seq", event.Seq)
		}
		return applied, nil

	case model.EntityBid:
		var bid model.Bid
		if err := decodePayload(event.Payload, &bid); err != nil {
			return false, err
		}
		applied := b.store.putBid(&bid)
		if !applied {
			b.log.Debug("Dropped stale bid event",
				"entity_id", event.EntityID, "seq", event.Seq)
		}
		return applied, nil

	default:
		return false, kafka.NewPermanentError("unknown change-feed entity: "+string(event.Entity), nil)
	}
}

// HandleMessage adapts ApplyEvent to the consumer's handler signature. A
// malformed payload is permanent, it will never decode on retry.
func (b *Bridge) HandleMessage(_ context.Context, msg kafka.Message) error {
	var event model.ChangeEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("decoding change event failed", err)
	}

	if _, err := b.ApplyEvent(&event); err != nil {
		return err
	}
	return nil
}

// Subscription is the handle for one topic subscription. Close releases it
// exactly once no matter how many exit paths call it.
type Subscription struct {
	bridge *Bridge
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Subscribe starts folding the given feed into the view until the handle is
// closed or the feed gives up reconnecting.
func (b *Bridge) Subscribe(ctx context.Context, feed *Feed) (*Subscription, error) {
	feedCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		bridge: b,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		if err := feed.Run(feedCtx, b.HandleMessage); err != nil && feedCtx.Err() == nil {
			b.log.Error("Change feed stopped", "topic", feed.Topic(), "error", err)
		}
	}()

	return sub, nil
}

// Close stops folding from the subscription's topic and releases the feed.
// Safe to call concurrently and repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done

		s.bridge.mu.Lock()
		delete(s.bridge.subs, s)
		s.bridge.mu.Unlock()
	})
}

// Done reports when the subscription's feed has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func decodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return kafka.NewPermanentError("decoding change-event payload failed", err)
	}
	return nil
}
