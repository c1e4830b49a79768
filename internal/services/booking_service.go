package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Satyam8589/SaveServe-sub000/internal/auth"
	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

const maxReasonLength = 500

// IBookingService drives bookings through their lifecycle after the claim.
type IBookingService interface {
	// Approve accepts a pending booking for approvedQty and mints its collection credential.
	Approve(ctx context.Context, bookingID utils.SixID, providerID string, approvedQty int) (*models.Booking, error)
	Reject(ctx context.Context, bookingID utils.SixID, providerID, reason string) (*models.Booking, error)
	// Cancel may be called by the recipient or by the listing's provider.
	Cancel(ctx context.Context, bookingID utils.SixID, actor models.Identity, reason string) (*models.Booking, error)
	// Expire is used by the sweeper.
	Expire(ctx context.Context, bookingID utils.SixID, reason string) (*models.Booking, error)

	Get(ctx context.Context, caller models.Identity, bookingID utils.SixID) (*models.Booking, error)
	ListForListing(ctx context.Context, listingID utils.SixID, providerID string) ([]models.Booking, error)
	ListForRecipient(ctx context.Context, recipientID string, page db.Page) ([]models.Booking, error)
}

type bookingService struct {
	*stateMachine
	signer *auth.CredentialSigner
	cfg    *config.Config
}

func NewBookingService(listings ListingStore, bookings BookingStore, signer *auth.CredentialSigner, events EventPublisher, clk clock.Clock, cfg *config.Config) IBookingService {
	return &bookingService{
		stateMachine: &stateMachine{listings: listings, bookings: bookings, events: events, clock: clk},
		signer:       signer,
		cfg:          cfg,
	}
}

func (s *bookingService) Approve(ctx context.Context, bookingID utils.SixID, providerID string, approvedQty int) (*models.Booking, error) {
	now := s.clock.Now()
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, reject(KindNotAuthorized, "booking %s is on another provider's listing", bookingID)
	}
	if err := checkTransition(b, models.StatusApproved); err != nil {
		return nil, err
	}
	if approvedQty < 1 || approvedQty > b.RequestedQuantity {
		return nil, reject(KindValidation, "approvedQuantity must be between 1 and %d", b.RequestedQuantity)
	}
	listing, err := s.loadListing(ctx, b.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.Expired(now) {
		return nil, reject(KindListingExpired, "listing %s expired before approval", listing.ID)
	}

	pickupBy := listing.PickupDeadline()
	var approved *models.Booking
	err = db.WithRetries(func() error {
		cred, err := issueCredential(s.signer, b, listing, now, s.cfg.CredentialTTL)
		if err != nil {
			return err
		}
		approved, err = s.transition(ctx, b, db.BookingChange{
			To:               models.StatusApproved,
			At:               now,
			ApprovedQuantity: &approvedQty,
			PickupBy:         &pickupBy,
			Credential:       cred,
		})
		return err
	}, db.DefaultMaxRetries, func(err error) bool { return errors.Is(err, db.ErrDuplicateCode) })
	if err != nil {
		return nil, err
	}

	s.release(ctx, b.ListingID, b.RequestedQuantity-approvedQty)
	s.publish(ctx, models.EventBookingApproved, approved, now)
	return approved, nil
}

func (s *bookingService) Reject(ctx context.Context, bookingID utils.SixID, providerID, reason string) (*models.Booking, error) {
	now := s.clock.Now()
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, reject(KindValidation, "reason must be at most %d characters", maxReasonLength)
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, reject(KindNotAuthorized, "booking %s is on another provider's listing", bookingID)
	}

	rejected, err := s.transition(ctx, b, db.BookingChange{To: models.StatusRejected, At: now, Reason: reason})
	if err != nil {
		return nil, err
	}
	s.release(ctx, b.ListingID, b.HeldQuantity())
	s.publish(ctx, models.EventBookingRejected, rejected, now)
	return rejected, nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID utils.SixID, actor models.Identity, reason string) (*models.Booking, error) {
	now := s.clock.Now()
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, reject(KindValidation, "reason must be at most %d characters", maxReasonLength)
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	isRecipient := actor.Role == models.RoleRecipient && b.RecipientID == actor.UserID
	isProvider := actor.Role == models.RoleProvider && b.ProviderID == actor.UserID
	if !isRecipient && !isProvider {
		return nil, reject(KindNotAuthorized, "only the recipient or the listing's provider can cancel booking %s", bookingID)
	}

	change := db.BookingChange{To: models.StatusCancelled, At: now, Reason: reason}
	if b.Credential != nil {
		change.RevokeCredential = true
	}
	cancelled, err := s.transition(ctx, b, change)
	if err != nil {
		return nil, err
	}
	s.release(ctx, b.ListingID, b.HeldQuantity())
	s.publish(ctx, models.EventBookingCancelled, cancelled, now)
	return cancelled, nil
}

// Expire moves a pending or approved booking to expired and releases what it
// held. A booking that was approved, cancelled or collected in the meantime
// makes this fail with INVALID_TRANSITION and nothing is released.
func (s *bookingService) Expire(ctx context.Context, bookingID utils.SixID, reason string) (*models.Booking, error) {
	now := s.clock.Now()
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	change := db.BookingChange{To: models.StatusExpired, At: now, Reason: reason}
	if b.Credential != nil {
		change.RevokeCredential = true
	}
	expired, err := s.transition(ctx, b, change)
	if err != nil {
		return nil, err
	}
	s.release(ctx, b.ListingID, b.HeldQuantity())
	s.publish(ctx, models.EventBookingExpired, expired, now)
	return expired, nil
}

// Get returns the booking to its recipient, or to the listing's provider
// without the credential.
func (s *bookingService) Get(ctx context.Context, caller models.Identity, bookingID utils.SixID) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch {
	case b.RecipientID == caller.UserID:
		return b, nil
	case b.ProviderID == caller.UserID, caller.Role == models.RoleAdmin:
		redacted := b.WithoutCredential()
		return &redacted, nil
	}
	return nil, reject(KindNotFound, "booking %s not found", bookingID)
}

func (s *bookingService) ListForListing(ctx context.Context, listingID utils.SixID, providerID string) ([]models.Booking, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.ProviderID != providerID {
		return nil, reject(KindNotAuthorized, "listing %s belongs to another provider", listingID)
	}
	bookings, err := s.bookings.ListBookingsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for listing %s: %w", listingID, err)
	}
	for i := range bookings {
		bookings[i] = bookings[i].WithoutCredential()
	}
	return bookings, nil
}

func (s *bookingService) ListForRecipient(ctx context.Context, recipientID string, page db.Page) ([]models.Booking, error) {
	bookings, err := s.bookings.ListBookingsByRecipient(ctx, recipientID, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for recipient %s: %w", recipientID, err)
	}
	return bookings, nil
}
