package models

import (
	"fmt"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// BookingStatus is the closed set of booking states. The string values are
// persisted and returned to clients unchanged.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusApproved  BookingStatus = "approved"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
	StatusCollected BookingStatus = "collected"
	StatusExpired   BookingStatus = "expired"
)

// AllBookingStatuses lists every state, pending first.
var AllBookingStatuses = []BookingStatus{
	StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCollected, StatusExpired,
}

// bookingTransitions is the full state machine. States without an entry are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled, StatusExpired},
	StatusApproved: {StatusCollected, StatusCancelled, StatusExpired},
}

// ParseBookingStatus validates a status string.
func ParseBookingStatus(s string) (BookingStatus, error) {
	for _, st := range AllBookingStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> to is a legal transition.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesOf returns the states from which to can be reached.
func SourcesOf(to BookingStatus) []BookingStatus {
	var from []BookingStatus
	for _, st := range AllBookingStatuses {
		if st.CanTransitionTo(to) {
			from = append(from, st)
		}
	}
	return from
}

// Credential is the collection proof minted on approval.
type Credential struct {
	QRPayload      string    `bson:"qr_payload" json:"qrPayload"`
	QRExpiry       time.Time `bson:"qr_expiry" json:"qrExpiry"`
	CollectionCode string    `bson:"collection_code" json:"collectionCode"`
	Nonce          string    `bson:"nonce" json:"-"`
}

// Booking is a recipient's reservation against a listing.
type Booking struct {
	Base              `bson:",inline"`
	ListingID         utils.SixID   `bson:"listing_id" json:"listingId"`
	ProviderID        string        `bson:"provider_id" json:"providerId"`
	RecipientID       string        `bson:"recipient_id" json:"recipientId"`
	RequestedQuantity int           `bson:"requested_quantity" json:"requestedQuantity"`
	ApprovedQuantity  *int          `bson:"approved_quantity,omitempty" json:"approvedQuantity,omitempty"`
	Status            BookingStatus `bson:"status" json:"status"`
	RequestMessage    string        `bson:"request_message,omitempty" json:"requestMessage,omitempty"`
	Reason            string        `bson:"reason,omitempty" json:"reason,omitempty"`
	RequestedAt       time.Time     `bson:"requested_at" json:"requestedAt"`
	ApprovedAt        *time.Time    `bson:"approved_at,omitempty" json:"approvedAt,omitempty"`
	RejectedAt        *time.Time    `bson:"rejected_at,omitempty" json:"rejectedAt,omitempty"`
	CancelledAt       *time.Time    `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CollectedAt       *time.Time    `bson:"collected_at,omitempty" json:"collectedAt,omitempty"`
	ExpiredAt         *time.Time    `bson:"expired_at,omitempty" json:"expiredAt,omitempty"`
	PickupBy          *time.Time    `bson:"pickup_by,omitempty" json:"pickupBy,omitempty"`
	Credential        *Credential   `bson:"credential,omitempty" json:"credential,omitempty"`
	HoldKey           string        `bson:"hold_key,omitempty" json:"-"`
}

// HoldKey identifies the single non-terminal booking a recipient may hold on a listing.
func HoldKey(listingID utils.SixID, recipientID string) string {
	return listingID.String() + ":" + recipientID
}

// HeldQuantity is what this booking currently withholds from the listing's remaining count.
func (b *Booking) HeldQuantity() int {
	switch b.Status {
	case StatusPending:
		return b.RequestedQuantity
	case StatusApproved:
		if b.ApprovedQuantity != nil {
			return *b.ApprovedQuantity
		}
		return b.RequestedQuantity
	}
	return 0
}

// ConsumedQuantity is what a collected booking took out of the listing for good.
func (b *Booking) ConsumedQuantity() int {
	if b.Status == StatusCollected && b.ApprovedQuantity != nil {
		return *b.ApprovedQuantity
	}
	return 0
}

// LastChangedAt is the time of the booking's most recent transition.
func (b *Booking) LastChangedAt() time.Time {
	last := b.RequestedAt
	for _, t := range []*time.Time{b.ApprovedAt, b.RejectedAt, b.CancelledAt, b.CollectedAt, b.ExpiredAt} {
		if t != nil && t.After(last) {
			last = *t
		}
	}
	return last
}

// WithoutCredential returns a copy safe to show to someone other than the recipient.
func (b Booking) WithoutCredential() Booking {
	b.Credential = nil
	return b
}
