package model

import (
	"time"
)

// BidStatus transitions only forward: pending -> accepted | rejected | expired.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
	BidExpired  BidStatus = "expired"
)

func ValidBidStatus(s BidStatus) bool {
	switch s {
	case BidPending, BidAccepted, BidRejected, BidExpired:
		return true
	default:
		return false
	}
}

type Material struct {
	Name string  `json:"name" bson:"name" validate:"required,min=1,max=100"`
	Cost float64 `json:"cost" bson:"cost" validate:"required,gt=0"`
}

type Bid struct {
	ID           string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	BookingID    string     `json:"booking_id" bson:"booking_id" validate:"required"`
	ContractorID string     `json:"contractor_id" bson:"contractor_id" validate:"required"`
	Amount       float64    `json:"amount" bson:"amount"`
	EtaMinutes   int        `json:"eta_minutes" bson:"eta_minutes"`
	Note         string     `json:"note,omitempty" bson:"note,omitempty" validate:"omitempty,max=1000"`
	Materials    []Material `json:"materials,omitempty" bson:"materials,omitempty" validate:"omitempty,dive"`
	Status       BidStatus  `json:"status" bson:"status" validate:"required"`
	RejectReason string     `json:"reject_reason,omitempty" bson:"reject_reason,omitempty"`
	Seq          int64      `json:"seq" bson:"seq"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	// ExpiresAt is immutable after creation. A zero value is a defect and is
	// interpreted as CreatedAt plus the configured window, never as "no expiry".
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// Active reports whether the bid is still available to the customer: pending
// and not yet expired. The interval is closed, expiry at exactly now counts
// as expired.
func (b *Bid) Active(now time.Time) bool {
	return b.Status == BidPending && now.Before(b.ExpiresAt)
}
