package model

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

type EntityType string

const (
	EntityBooking EntityType = "booking"
	EntityBid     EntityType = "bid"
)

// ChangeEvent is the change-feed notification fanned out after every mutation.
// Delivery is at-least-once and possibly out of order; Seq is the per-entity
// monotonic marker consumers use to drop stale or replayed events. Events are
// keyed by BookingID so all changes for one booking share a partition.
type ChangeEvent struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	Entity    EntityType      `json:"entity"`
	EntityID  string          `json:"entity_id"`
	BookingID string          `json:"booking_id"`
	Seq       int64           `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}
