package services

import (
	"context"
	"log"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
	"github.com/Satyam8589/SaveServe-sub000/internal/visibility"
)

// ListingStore is the persistence the services need for listings.
// Implemented by db.MongoListingStore and db.MemoryStore.
type ListingStore interface {
	InsertListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id utils.SixID) (*models.Listing, error)
	FindVisible(ctx context.Context, c visibility.Criteria, page db.Page) ([]models.Listing, error)
	ListByProvider(ctx context.Context, providerID string, page db.Page) ([]models.Listing, error)
	ReserveQuantity(ctx context.Context, id utils.SixID, qty int, now time.Time) (*models.Listing, error)
	ReleaseQuantity(ctx context.Context, id utils.SixID, qty int) (*models.Listing, error)
	CompareAndSetRemaining(ctx context.Context, id utils.SixID, expected, next int) error
	DeactivateListing(ctx context.Context, id utils.SixID, now time.Time) (*models.Listing, error)
	DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]utils.SixID, error)
	SetListingImage(ctx context.Context, id utils.SixID, key string, now time.Time) error
}

// BookingStore is the persistence the services need for bookings.
// Implemented by db.MongoBookingStore and db.MemoryStore.
type BookingStore interface {
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id utils.SixID) (*models.Booking, error)
	FindBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	FindActiveHold(ctx context.Context, listingID utils.SixID, recipientID string) (*models.Booking, error)
	TransitionBooking(ctx context.Context, id utils.SixID, from models.BookingStatus, change db.BookingChange) (*models.Booking, error)
	ListBookingsByListing(ctx context.Context, listingID utils.SixID) ([]models.Booking, error)
	ListBookingsByRecipient(ctx context.Context, recipientID string, page db.Page) ([]models.Booking, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	FindOverdueApproved(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
}

// EventPublisher hands booking events to the notification pipeline. Publish
// must not block on delivery and never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event models.BookingEvent)
}

// LogPublisher only logs events. Used when no queue is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event models.BookingEvent) {
	log.Printf("[Events] %s booking=%s listing=%s status=%s qty=%d",
		event.Type, event.BookingID, event.ListingID, event.Status, event.Quantity)
}
