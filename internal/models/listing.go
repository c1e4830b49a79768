package models

import (
	"time"
)

// Freshness is an ordinal classification, lower is fresher.
type Freshness int

const (
	FreshnessFresh Freshness = iota
	FreshnessGood
	FreshnessUseSoon
)

func (f Freshness) Valid() bool {
	return f >= FreshnessFresh && f <= FreshnessUseSoon
}

// Listing is a provider's published, quantity-limited food offer.
type Listing struct {
	Base                `bson:",inline"`
	ProviderID          string     `bson:"provider_id" json:"providerId"`
	Title               string     `bson:"title" json:"title"`
	Description         string     `bson:"description,omitempty" json:"description,omitempty"`
	TotalQuantity       int        `bson:"total_quantity" json:"totalQuantity"`
	Remaining           int        `bson:"remaining_quantity" json:"remainingQuantity"`
	Unit                string     `bson:"unit,omitempty" json:"unit,omitempty"`
	AvailableFrom       time.Time  `bson:"available_from" json:"availableFrom"`
	AvailableUntil      time.Time  `bson:"available_until" json:"availableUntil"`
	ExpiryTime          time.Time  `bson:"expiry_time" json:"expiryTime"`
	Freshness           Freshness  `bson:"freshness" json:"freshness"`
	Location            string     `bson:"location" json:"location"`
	Active              bool       `bson:"active" json:"active"`
	BulkExclusive       bool       `bson:"bulk_exclusive" json:"bulkExclusive"`
	ExclusivityDeadline *time.Time `bson:"exclusivity_deadline" json:"exclusivityDeadline"`
	ImageKey            string     `bson:"image_key,omitempty" json:"imageKey,omitempty"`
	CreatedAt           time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updated_at" json:"updatedAt"`
}

// Collectible reports whether quantity can still be claimed at now.
func (l *Listing) Collectible(now time.Time) bool {
	return l.Active && now.Before(l.ExpiryTime) && l.Remaining > 0
}

// Expired reports whether the listing's expiry time has been reached.
func (l *Listing) Expired(now time.Time) bool {
	return !now.Before(l.ExpiryTime)
}

// InExclusivityWindow reports whether only privileged recipients may see it at now.
func (l *Listing) InExclusivityWindow(now time.Time) bool {
	return l.BulkExclusive && l.ExclusivityDeadline != nil && now.Before(*l.ExclusivityDeadline)
}

// PickupDeadline is the last instant an approved booking can be collected:
// the end of the availability window, capped by expiry.
func (l *Listing) PickupDeadline() time.Time {
	if l.AvailableUntil.IsZero() || l.AvailableUntil.After(l.ExpiryTime) {
		return l.ExpiryTime
	}
	return l.AvailableUntil
}
