package realtime

import (
	"context"
	"encoding/json"
	"time"

	"fixly/pkg/kafka"
	"fixly/pkg/logger"
	"fixly/pkg/model"

	"github.com/google/uuid"
)

const (
	TopicBookingChanges = "fixly.bookings.changes"
	TopicBidChanges     = "fixly.bids.changes"
)

// Publisher fans mutations out to the change feed. Both entity streams are
// keyed by booking id so every change touching one booking lands on the same
// partition.
type Publisher interface {
	PublishBookingChange(ctx context.Context, kind model.EventKind, booking *model.Booking) error
	PublishBidChange(ctx context.Context, kind model.EventKind, bid *model.Bid) error
}

type kafkaPublisher struct {
	bookings *kafka.Producer
	bids     *kafka.Producer
	source   string
	log      *logger.Logger
}

func NewKafkaPublisher(bookings, bids *kafka.Producer, source string, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		bookings: bookings,
		bids:     bids,
		source:   source,
		log:      log,
	}
}

func (p *kafkaPublisher) PublishBookingChange(ctx context.Context, kind model.EventKind, booking *model.Booking) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return err
	}

	event := model.ChangeEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Entity:    model.EntityBooking,
		EntityID:  booking.ID,
		BookingID: booking.ID,
		Seq:       booking.Seq,
		Payload:   payload,
		At:        time.Now().UTC(),
	}

	return p.publish(ctx, p.bookings, booking.ID, event)
}

func (p *kafkaPublisher) PublishBidChange(ctx context.Context, kind model.EventKind, bid *model.Bid) error {
	payload, err := json.Marshal(bid)
	if err != nil {
		return err
	}

	event := model.ChangeEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Entity:    model.EntityBid,
		EntityID:  bid.ID,
		BookingID: bid.BookingID,
		Seq:       bid.Seq,
		Payload:   payload,
		At:        time.Now().UTC(),
	}

	return p.publish(ctx, p.bids, bid.BookingID, event)
}

func (p *kafkaPublisher) publish(ctx context.Context, producer *kafka.Producer, key string, event model.ChangeEvent) error {
	msg := kafka.NewMessage().
		WithKey(key).
		WithValue(event).
		WithEventType(string(event.Entity) + "." + string(event.Kind)).
		WithEntitySeq(event.Seq).
		WithSource(p.source).
		Build()

	if err := producer.Publish(ctx, msg); err != nil {
		// The mutation already committed; the feed is eventually consistent
		// and consumers re-sync from the authoritative store.
		p.log.Error("Failed to publish change event",
			"entity", event.Entity,
			"entity_id", event.EntityID,
			"seq", event.Seq,
			"error", err,
		)
		return err
	}

	return nil
}

// NoopPublisher discards events, used in tests and tools that have no feed.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingChange(context.Context, model.EventKind, *model.Booking) error {
	return nil
}

func (NoopPublisher) PublishBidChange(context.Context, model.EventKind, *model.Bid) error {
	return nil
}
