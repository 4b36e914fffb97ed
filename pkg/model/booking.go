package model

import (
	"time"
)

// BookingStatus is the canonical fulfillment state. The externally visible
// display stage is derived from it on every read, never stored.
type BookingStatus string

const (
	StatusAwaitingBids       BookingStatus = "awaiting_bids"
	StatusContractorAssigned BookingStatus = "contractor_assigned"
	StatusContractorArriving BookingStatus = "contractor_arriving"
	StatusWorkInProgress     BookingStatus = "work_in_progress"
	StatusWorkCompleted      BookingStatus = "work_completed"
	StatusPaid               BookingStatus = "paid"
	StatusCancelled          BookingStatus = "cancelled"
)

func ValidBookingStatus(s BookingStatus) bool {
	switch s {
	case StatusAwaitingBids, StatusContractorAssigned, StatusContractorArriving,
		StatusWorkInProgress, StatusWorkCompleted, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions or bid mutations are allowed.
func (s BookingStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

type Tier string

const (
	TierStandard Tier = "standard"
	TierPriority Tier = "priority"
)

func ValidTier(t Tier) bool {
	return t == TierStandard || t == TierPriority
}

type PaymentState string

const (
	PaymentUnpaid PaymentState = "unpaid"
	PaymentPaid   PaymentState = "paid"
)

type Booking struct {
	ID              string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	CustomerID      string            `json:"customer_id" bson:"customer_id" validate:"required"`
	ContractorID    string            `json:"contractor_id,omitempty" bson:"contractor_id,omitempty"`
	ServiceCategory string            `json:"service_category" bson:"service_category" validate:"required,min=2,max=60"`
	Tier            Tier              `json:"tier" bson:"tier" validate:"required,oneof=standard priority"`
	Urgency         string            `json:"urgency,omitempty" bson:"urgency,omitempty" validate:"omitempty,oneof=low medium high"`
	ScheduledAt     *time.Time        `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
	Asap            bool              `json:"asap" bson:"asap"`
	PriceMin        float64           `json:"price_min" bson:"price_min" validate:"gte=0"`
	PriceMax        float64           `json:"price_max" bson:"price_max" validate:"gtefield=PriceMin"`
	Description     string            `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=2000"`
	Answers         map[string]string `json:"answers,omitempty" bson:"answers,omitempty" validate:"omitempty,answers_map"`
	ImageRefs       []string          `json:"image_refs,omitempty" bson:"image_refs,omitempty" validate:"omitempty,dive,max=500"`
	Status          BookingStatus     `json:"status" bson:"status" validate:"required"`
	PaymentState    PaymentState      `json:"payment_state" bson:"payment_state" validate:"required,oneof=unpaid paid"`
	Seq             int64             `json:"seq" bson:"seq"`
	CreatedAt       time.Time         `json:"created_at" bson:"created_at"`
	AssignedAt      *time.Time        `json:"assigned_at,omitempty" bson:"assigned_at,omitempty"`
}

// OpenForBidding reports whether new bids may be submitted.
func (b *Booking) OpenForBidding() bool {
	return b.Status == StatusAwaitingBids
}
