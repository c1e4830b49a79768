package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/monitoring"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// stateMachine applies booking transitions. Every transition is a
// compare-and-set on the current status, and quantity is only released by
// the caller that won it.
type stateMachine struct {
	listings ListingStore
	bookings BookingStore
	events   EventPublisher
	clock    clock.Clock
}

func (m *stateMachine) loadBooking(ctx context.Context, id utils.SixID) (*models.Booking, error) {
	b, err := m.bookings.GetBooking(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(KindNotFound, "booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	return b, nil
}

func (m *stateMachine) loadListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	l, err := m.listings.GetListing(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(KindNotFound, "listing %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", id, err)
	}
	return l, nil
}

func checkTransition(b *models.Booking, to models.BookingStatus) error {
	if !b.Status.CanTransitionTo(to) {
		return reject(KindInvalidTransition, "booking %s cannot go from %s to %s", b.ID, b.Status, to)
	}
	return nil
}

// transition moves b from its current status to change.To. Losing a race to
// another transition is reported as INVALID_TRANSITION against the status
// that won.
func (m *stateMachine) transition(ctx context.Context, b *models.Booking, change db.BookingChange) (*models.Booking, error) {
	if err := checkTransition(b, change.To); err != nil {
		return nil, err
	}
	updated, err := m.bookings.TransitionBooking(ctx, b.ID, b.Status, change)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrConditionFailed):
		current, gerr := m.bookings.GetBooking(ctx, b.ID)
		if gerr != nil {
			return nil, reject(KindInvalidTransition, "booking %s changed concurrently", b.ID)
		}
		return nil, reject(KindInvalidTransition, "booking %s cannot go from %s to %s", b.ID, current.Status, change.To)
	case errors.Is(err, db.ErrNotFound):
		return nil, reject(KindNotFound, "booking %s not found", b.ID)
	default:
		return nil, fmt.Errorf("failed to move booking %s to %s: %w", b.ID, change.To, err)
	}

	monitoring.TrackTransition(string(b.Status), string(change.To))
	log.Printf("[Bookings] Booking %s %s -> %s", b.ID, b.Status, change.To)
	return updated, nil
}

// release returns qty to the listing. Transient failures are retried; a
// release that still fails is logged and left for Reconcile.
func (m *stateMachine) release(ctx context.Context, listingID utils.SixID, qty int) {
	if qty <= 0 {
		return
	}
	if err := releaseWithRetries(ctx, m.listings, listingID, qty); err != nil {
		log.Printf("[Bookings Error] Failed to release %d on listing %s: %v", qty, listingID, err)
	}
}

// releaseWithRetries retries everything except a missing listing or a
// release that would overflow the total.
func releaseWithRetries(ctx context.Context, listings ListingStore, listingID utils.SixID, qty int) error {
	return db.WithRetries(func() error {
		_, err := listings.ReleaseQuantity(ctx, listingID, qty)
		return err
	}, db.DefaultMaxRetries, func(err error) bool {
		return !errors.Is(err, db.ErrConditionFailed) && !errors.Is(err, db.ErrNotFound)
	})
}

func (m *stateMachine) publish(ctx context.Context, t models.EventType, b *models.Booking, at time.Time) {
	m.events.Publish(ctx, models.NewBookingEvent(t, b, at))
}

// markCollected finalizes an approved booking. Nothing is released: the
// approved quantity leaves the listing for good. Only the collection
// verifier calls this.
func (m *stateMachine) markCollected(ctx context.Context, b *models.Booking, now time.Time) (*models.Booking, error) {
	updated, err := m.transition(ctx, b, db.BookingChange{To: models.StatusCollected, At: now})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, models.EventBookingCollected, updated, now)
	return updated, nil
}
