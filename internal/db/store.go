package db

import (
	"errors"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConditionFailed is returned when a conditional update matched no document
	// because its guard (quantity, status) did not hold.
	ErrConditionFailed = errors.New("update condition not met")
	// ErrDuplicateHold is returned when a recipient already holds a non-terminal
	// booking on the listing.
	ErrDuplicateHold = errors.New("recipient already holds an active booking on this listing")
	// ErrDuplicateCode is returned when a collection code is already taken.
	ErrDuplicateCode = errors.New("collection code already in use")
)

// Page limits a list query. Zero Limit means DefaultPageLimit.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// BookingChange describes one status transition and the fields it sets.
type BookingChange struct {
	To               models.BookingStatus
	At               time.Time
	Reason           string
	ApprovedQuantity *int
	PickupBy         *time.Time
	Credential       *models.Credential
	// RevokeCredential blanks the credential nonce so the issued QR payload
	// no longer resolves.
	RevokeCredential bool
}

// apply mutates b in place. Used by the in-memory store and mirrored by the
// Mongo update document.
func (c BookingChange) apply(b *models.Booking) {
	at := c.At
	b.Status = c.To
	switch c.To {
	case models.StatusApproved:
		b.ApprovedAt = &at
	case models.StatusRejected:
		b.RejectedAt = &at
	case models.StatusCancelled:
		b.CancelledAt = &at
	case models.StatusCollected:
		b.CollectedAt = &at
	case models.StatusExpired:
		b.ExpiredAt = &at
	}
	if c.Reason != "" {
		b.Reason = c.Reason
	}
	if c.ApprovedQuantity != nil {
		q := *c.ApprovedQuantity
		b.ApprovedQuantity = &q
	}
	if c.PickupBy != nil {
		p := *c.PickupBy
		b.PickupBy = &p
	}
	if c.Credential != nil {
		cred := *c.Credential
		b.Credential = &cred
	}
	if c.RevokeCredential && b.Credential != nil {
		b.Credential.Nonce = ""
	}
	if c.To.Terminal() {
		b.HoldKey = ""
	}
}

// timestampField is the bson field recording when a booking entered status s.
func timestampField(s models.BookingStatus) string {
	switch s {
	case models.StatusApproved:
		return "approved_at"
	case models.StatusRejected:
		return "rejected_at"
	case models.StatusCancelled:
		return "cancelled_at"
	case models.StatusCollected:
		return "collected_at"
	case models.StatusExpired:
		return "expired_at"
	}
	return "requested_at"
}
