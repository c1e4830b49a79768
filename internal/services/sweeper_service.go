package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/monitoring"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

const (
	ReasonRequestTimedOut = "request timed out"
	ReasonPickupMissed    = "pickup window closed"

	// ReconcileSettleTime is how long a listing and its bookings must go
	// unchanged before Reconcile will touch it. A transition commits before
	// its release lands, so a recent change may still be in flight.
	ReconcileSettleTime = time.Minute
)

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	DeactivatedListings int           `json:"deactivatedListings"`
	ExpiredPending      int           `json:"expiredPending"`
	ExpiredApproved     int           `json:"expiredApproved"`
	Reconciled          int           `json:"reconciled"`
	Failures            int           `json:"failures"`
	Duration            time.Duration `json:"duration"`
}

// ReconcileResult reports what Reconcile found for one listing.
type ReconcileResult struct {
	ListingID utils.SixID `json:"listingId"`
	Before    int         `json:"before"`
	After     int         `json:"after"`
	Corrected bool        `json:"corrected"`
	Skipped   string      `json:"skipped,omitempty"`
}

// ISweeperService reclaims quantity held by abandoned bookings.
type ISweeperService interface {
	Sweep(ctx context.Context) (SweepReport, error)
	Reconcile(ctx context.Context, listingID utils.SixID) (ReconcileResult, error)
}

type sweeperService struct {
	listings ListingStore
	bookings BookingStore
	booking  IBookingService
	clock    clock.Clock
	cfg      *config.Config
}

func NewSweeperService(listings ListingStore, bookings BookingStore, booking IBookingService, clk clock.Clock, cfg *config.Config) ISweeperService {
	return &sweeperService{listings: listings, bookings: bookings, booking: booking, clock: clk, cfg: cfg}
}

// Sweep deactivates expired listings, then expires stale pending bookings and
// approved bookings whose pickup window has closed. Each pass handles at most
// SweepBatchSize items of each kind; the next pass picks up the rest.
func (s *sweeperService) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	now := s.clock.Now()
	var report SweepReport
	// listing -> bookings this pass expired; their releases have completed.
	touched := make(map[utils.SixID]map[utils.SixID]struct{})

	ids, err := s.listings.DeactivateExpired(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to deactivate expired listings: %w", err)
	}
	report.DeactivatedListings = len(ids)

	stale, err := s.bookings.FindStalePending(ctx, now.Add(-s.cfg.RequestTimeout), s.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to find stale pending bookings: %w", err)
	}
	report.ExpiredPending, report.Failures = s.expireAll(ctx, stale, ReasonRequestTimedOut, touched)

	overdue, err := s.bookings.FindOverdueApproved(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to find overdue approved bookings: %w", err)
	}
	expired, failed := s.expireAll(ctx, overdue, ReasonPickupMissed, touched)
	report.ExpiredApproved = expired
	report.Failures += failed

	if s.cfg.ReconcileOnSweep {
		for _, id := range ids {
			if touched[id] == nil {
				touched[id] = make(map[utils.SixID]struct{})
			}
		}
		for id, own := range touched {
			res, err := s.reconcile(ctx, id, own)
			if err != nil {
				log.Printf("[Sweeper Error] Reconcile of listing %s failed: %v", id, err)
				report.Failures++
				continue
			}
			if res.Corrected {
				report.Reconciled++
			}
		}
	}

	report.Duration = time.Since(start)
	monitoring.TrackSweep(report.DeactivatedListings, report.ExpiredPending, report.ExpiredApproved, report.Duration)
	if report.DeactivatedListings+report.ExpiredPending+report.ExpiredApproved+report.Failures > 0 {
		log.Printf("[Sweeper] Deactivated %d listings, expired %d pending and %d approved bookings, %d failures",
			report.DeactivatedListings, report.ExpiredPending, report.ExpiredApproved, report.Failures)
	}
	return report, ctx.Err()
}

// expireAll expires each booking through the booking service. Bookings that
// moved on since they were found are skipped silently.
func (s *sweeperService) expireAll(ctx context.Context, bookings []models.Booking, reason string, touched map[utils.SixID]map[utils.SixID]struct{}) (expired, failed int) {
	for i := range bookings {
		if ctx.Err() != nil {
			return expired, failed
		}
		b := &bookings[i]
		_, err := s.booking.Expire(ctx, b.ID, reason)
		switch {
		case err == nil:
			expired++
			if touched[b.ListingID] == nil {
				touched[b.ListingID] = make(map[utils.SixID]struct{})
			}
			touched[b.ListingID][b.ID] = struct{}{}
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
		default:
			failed++
			log.Printf("[Sweeper Error] Failed to expire booking %s: %v", b.ID, err)
		}
	}
	return expired, failed
}

// Reconcile recomputes remaining = total - held - collected from the listing's
// bookings and corrects it with a compare-and-set. Listings with a recent
// reservation or booking change are skipped.
func (s *sweeperService) Reconcile(ctx context.Context, listingID utils.SixID) (ReconcileResult, error) {
	return s.reconcile(ctx, listingID, nil)
}

// reconcile ignores the timestamps of the bookings in settled, whose
// releases the caller has already applied.
func (s *sweeperService) reconcile(ctx context.Context, listingID utils.SixID, settled map[utils.SixID]struct{}) (ReconcileResult, error) {
	res := ReconcileResult{ListingID: listingID}
	err := db.WithRetries(func() error {
		var err error
		res, err = s.reconcileOnce(ctx, listingID, settled)
		return err
	}, db.DefaultMaxRetries, func(err error) bool { return errors.Is(err, db.ErrConditionFailed) })
	if errors.Is(err, db.ErrConditionFailed) {
		res.Skipped = "listing kept changing"
		return res, nil
	}
	return res, err
}

func (s *sweeperService) reconcileOnce(ctx context.Context, listingID utils.SixID, settled map[utils.SixID]struct{}) (ReconcileResult, error) {
	res := ReconcileResult{ListingID: listingID}
	listing, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, db.ErrNotFound) {
		return res, reject(KindNotFound, "listing %s not found", listingID)
	}
	if err != nil {
		return res, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	res.Before, res.After = listing.Remaining, listing.Remaining
	now := s.clock.Now()
	if now.Sub(listing.UpdatedAt) < ReconcileSettleTime {
		res.Skipped = "recent reservation"
		return res, nil
	}

	bookings, err := s.bookings.ListBookingsByListing(ctx, listingID)
	if err != nil {
		return res, fmt.Errorf("failed to list bookings for listing %s: %w", listingID, err)
	}
	for i := range bookings {
		if _, ok := settled[bookings[i].ID]; ok {
			continue
		}
		if now.Sub(bookings[i].LastChangedAt()) < ReconcileSettleTime {
			res.Skipped = "recent booking change"
			return res, nil
		}
	}
	expected := listing.TotalQuantity
	for i := range bookings {
		expected -= bookings[i].HeldQuantity() + bookings[i].ConsumedQuantity()
	}
	if expected < 0 {
		log.Printf("[Sweeper Error] Listing %s is oversubscribed by %d", listingID, -expected)
		expected = 0
	}
	if expected == listing.Remaining {
		return res, nil
	}

	if err := s.listings.CompareAndSetRemaining(ctx, listingID, listing.Remaining, expected); err != nil {
		return res, err
	}
	res.After, res.Corrected = expected, true
	monitoring.TrackReconcileCorrection()
	log.Printf("[Sweeper] Corrected remaining on listing %s from %d to %d", listingID, listing.Remaining, expected)
	return res, nil
}
