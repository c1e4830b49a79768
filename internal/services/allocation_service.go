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
	"github.com/Satyam8589/SaveServe-sub000/internal/visibility"
)

// ClaimRequest is a recipient's request for part of a listing.
type ClaimRequest struct {
	ListingID utils.SixID
	Recipient models.Identity
	Quantity  int
	Message   string
}

// IAllocationService turns claim requests into pending bookings.
type IAllocationService interface {
	RequestClaim(ctx context.Context, req ClaimRequest) (*models.Booking, error)
}

type allocationService struct {
	listings ListingStore
	bookings BookingStore
	events   EventPublisher
	clock    clock.Clock
	cfg      *config.Config
}

func NewAllocationService(listings ListingStore, bookings BookingStore, events EventPublisher, clk clock.Clock, cfg *config.Config) IAllocationService {
	return &allocationService{listings: listings, bookings: bookings, events: events, clock: clk, cfg: cfg}
}

// RequestClaim reserves req.Quantity from the listing and records a pending
// booking holding it. The reservation is a single conditional decrement, so
// concurrent claims can never oversubscribe the listing.
func (s *allocationService) RequestClaim(ctx context.Context, req ClaimRequest) (*models.Booking, error) {
	booking, err := s.requestClaim(ctx, req)
	monitoring.TrackClaim(outcomeOf(err))
	return booking, err
}

func (s *allocationService) requestClaim(ctx context.Context, req ClaimRequest) (*models.Booking, error) {
	now := s.clock.Now()

	switch {
	case req.Recipient.UserID == "":
		return nil, reject(KindValidation, "recipient id is required")
	case req.Recipient.Role != models.RoleRecipient:
		return nil, reject(KindNotAuthorized, "only recipients can claim listings")
	case req.Quantity < 1:
		return nil, reject(KindValidation, "requestedQuantity must be at least 1")
	case req.Quantity > s.cfg.MaxRequestQuantity:
		return nil, reject(KindValidation, "requestedQuantity must be at most %d", s.cfg.MaxRequestQuantity)
	case len(req.Message) > 1000:
		return nil, reject(KindValidation, "message must be at most 1000 characters")
	}

	listing, err := s.listings.GetListing(ctx, req.ListingID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(KindNotFound, "listing %s not found", req.ListingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", req.ListingID, err)
	}
	if rej := s.checkClaimable(listing, req, now); rej != nil {
		return nil, rej
	}

	// Pre-check so the common duplicate never touches the counter. The unique
	// hold index still decides races.
	if _, err := s.bookings.FindActiveHold(ctx, req.ListingID, req.Recipient.UserID); err == nil {
		return nil, reject(KindDuplicateActiveClaim, "recipient already has an active booking on listing %s", req.ListingID)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active holds: %w", err)
	}

	if _, err := s.listings.ReserveQuantity(ctx, req.ListingID, req.Quantity, now); err != nil {
		return nil, s.explainReserveFailure(ctx, req, err, now)
	}

	booking := &models.Booking{
		ListingID:         req.ListingID,
		ProviderID:        listing.ProviderID,
		RecipientID:       req.Recipient.UserID,
		RequestedQuantity: req.Quantity,
		Status:            models.StatusPending,
		RequestMessage:    req.Message,
		RequestedAt:       now,
		HoldKey:           models.HoldKey(req.ListingID, req.Recipient.UserID),
	}
	if err := s.bookings.InsertBooking(ctx, booking); err != nil {
		s.compensate(ctx, req.ListingID, req.Quantity)
		if errors.Is(err, db.ErrDuplicateHold) {
			return nil, reject(KindDuplicateActiveClaim, "recipient already has an active booking on listing %s", req.ListingID)
		}
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	log.Printf("[Allocation] Recipient %s reserved %d on listing %s (booking %s)",
		req.Recipient.UserID, req.Quantity, req.ListingID, booking.ID)
	s.events.Publish(ctx, models.NewBookingEvent(models.EventBookingPending, booking, now))
	return booking, nil
}

// checkClaimable applies the expiry and visibility rules in order. A sold
// out listing is reported as such to callers who could otherwise see it.
func (s *allocationService) checkClaimable(l *models.Listing, req ClaimRequest, now time.Time) *Rejection {
	if l.Expired(now) {
		return reject(KindListingExpired, "listing %s expired at %s", l.ID, l.ExpiryTime.Format(time.RFC3339))
	}
	if l.Remaining > 0 {
		if !visibility.IsVisible(l, req.Recipient.Role, req.Recipient.Subrole, now) {
			return reject(KindNotVisible, "listing %s is not visible to this recipient", l.ID)
		}
		return nil
	}
	if !l.Active || (l.InExclusivityWindow(now) && !req.Recipient.Subrole.Privileged()) {
		return reject(KindNotVisible, "listing %s is not visible to this recipient", l.ID)
	}
	return reject(KindInsufficientQuantity, "requested %d but none remaining", req.Quantity)
}

// explainReserveFailure re-reads the listing after a failed decrement to say why.
func (s *allocationService) explainReserveFailure(ctx context.Context, req ClaimRequest, err error, now time.Time) error {
	if errors.Is(err, db.ErrNotFound) {
		return reject(KindNotFound, "listing %s not found", req.ListingID)
	}
	if !errors.Is(err, db.ErrConditionFailed) {
		return fmt.Errorf("failed to reserve quantity: %w", err)
	}
	current, gerr := s.listings.GetListing(ctx, req.ListingID)
	if gerr != nil {
		return fmt.Errorf("failed to reload listing %s: %w", req.ListingID, gerr)
	}
	switch {
	case current.Expired(now):
		return reject(KindListingExpired, "listing %s expired at %s", current.ID, current.ExpiryTime.Format(time.RFC3339))
	case !current.Active:
		return reject(KindNotVisible, "listing %s is not available", current.ID)
	default:
		return reject(KindInsufficientQuantity, "requested %d but only %d remaining", req.Quantity, current.Remaining)
	}
}

// compensate returns a reservation whose booking could not be written.
// Transient failures are retried; anything left over is drift that
// Reconcile corrects.
func (s *allocationService) compensate(ctx context.Context, listingID utils.SixID, qty int) {
	if err := releaseWithRetries(ctx, s.listings, listingID, qty); err != nil {
		log.Printf("[Allocation Error] Failed to release %d on listing %s after failed insert: %v", qty, listingID, err)
	}
}
