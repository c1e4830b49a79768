package models

import (
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// EventType names a booking lifecycle event handed to the notifier.
type EventType string

const (
	EventBookingPending   EventType = "booking.pending"
	EventBookingApproved  EventType = "booking.approved"
	EventBookingRejected  EventType = "booking.rejected"
	EventBookingCollected EventType = "booking.collected"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingExpired   EventType = "booking.expired"
)

// BookingEvent is the payload fanned out to notification channels.
type BookingEvent struct {
	Type        EventType     `json:"type"`
	BookingID   utils.SixID   `json:"bookingId"`
	ListingID   utils.SixID   `json:"listingId"`
	ProviderID  string        `json:"providerId"`
	RecipientID string        `json:"recipientId"`
	Status      BookingStatus `json:"status"`
	Quantity    int           `json:"quantity"`
	Reason      string        `json:"reason,omitempty"`
	OccurredAt  time.Time     `json:"occurredAt"`
}

// NewBookingEvent snapshots b for event type t.
func NewBookingEvent(t EventType, b *Booking, at time.Time) BookingEvent {
	qty := b.RequestedQuantity
	if b.ApprovedQuantity != nil {
		qty = *b.ApprovedQuantity
	}
	return BookingEvent{
		Type:        t,
		BookingID:   b.ID,
		ListingID:   b.ListingID,
		ProviderID:  b.ProviderID,
		RecipientID: b.RecipientID,
		Status:      b.Status,
		Quantity:    qty,
		Reason:      b.Reason,
		OccurredAt:  at,
	}
}

// Audience returns the user ids that should hear about the event.
func (e BookingEvent) Audience() []string {
	switch e.Type {
	case EventBookingPending:
		return []string{e.ProviderID}
	case EventBookingApproved, EventBookingRejected:
		return []string{e.RecipientID}
	default:
		return []string{e.RecipientID, e.ProviderID}
	}
}
