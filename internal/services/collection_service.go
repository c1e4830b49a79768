package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/auth"
	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/monitoring"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// VerifyRequest carries exactly one of QRPayload or CollectionCode.
type VerifyRequest struct {
	QRPayload          string `json:"qrPayload"`
	CollectionCode     string `json:"collectionCode"`
	ScanningProviderID string `json:"scanningProviderId"`
}

// ICollectionService mints and checks the one-time pickup credential.
type ICollectionService interface {
	IssueCredential(b *models.Booking, l *models.Listing, now time.Time) (*models.Credential, error)
	// Verify checks a credential presented at pickup and, if it is good,
	// marks the booking collected.
	Verify(ctx context.Context, req VerifyRequest) (*models.Booking, error)
}

type collectionService struct {
	*stateMachine
	signer *auth.CredentialSigner
	cfg    *config.Config
}

func NewCollectionService(listings ListingStore, bookings BookingStore, signer *auth.CredentialSigner, events EventPublisher, clk clock.Clock, cfg *config.Config) ICollectionService {
	return &collectionService{
		stateMachine: &stateMachine{listings: listings, bookings: bookings, events: events, clock: clk},
		signer:       signer,
		cfg:          cfg,
	}
}

// issueCredential builds a credential for b. It expires at the earliest of
// the pickup window end, the listing expiry and now+ttl.
func issueCredential(signer *auth.CredentialSigner, b *models.Booking, l *models.Listing, now time.Time, ttl time.Duration) (*models.Credential, error) {
	expiry := l.PickupDeadline()
	if l.ExpiryTime.Before(expiry) {
		expiry = l.ExpiryTime
	}
	if limit := now.Add(ttl); limit.Before(expiry) {
		expiry = limit
	}

	payload, nonce, err := signer.Sign(b.ID, b.ListingID, now, expiry)
	if err != nil {
		return nil, err
	}
	code, err := utils.NewCollectionCode()
	if err != nil {
		return nil, err
	}
	return &models.Credential{
		QRPayload:      payload,
		QRExpiry:       expiry,
		CollectionCode: code,
		Nonce:          nonce,
	}, nil
}

func (s *collectionService) IssueCredential(b *models.Booking, l *models.Listing, now time.Time) (*models.Credential, error) {
	return issueCredential(s.signer, b, l, now, s.cfg.CredentialTTL)
}

func (s *collectionService) Verify(ctx context.Context, req VerifyRequest) (*models.Booking, error) {
	b, err := s.verify(ctx, req)
	monitoring.TrackVerify(outcomeOf(err))
	return b, err
}

func (s *collectionService) verify(ctx context.Context, req VerifyRequest) (*models.Booking, error) {
	now := s.clock.Now()

	qr := strings.TrimSpace(req.QRPayload)
	code := strings.TrimSpace(req.CollectionCode)
	switch {
	case req.ScanningProviderID == "":
		return nil, reject(KindValidation, "scanningProviderId is required")
	case qr == "" && code == "":
		return nil, reject(KindValidation, "qrPayload or collectionCode is required")
	case qr != "" && code != "":
		return nil, reject(KindValidation, "send either qrPayload or collectionCode, not both")
	}

	var (
		b   *models.Booking
		err error
	)
	if qr != "" {
		b, err = s.resolvePayload(ctx, qr)
	} else {
		b, err = s.resolveCode(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case models.StatusApproved:
	case models.StatusCollected:
		return nil, reject(KindAlreadyCollected, "booking %s was collected at %s", b.ID, formatTime(b.CollectedAt))
	default:
		return nil, reject(KindCredentialExpired, "credential for booking %s was revoked (booking %s)", b.ID, b.Status)
	}
	if b.Credential == nil || now.After(b.Credential.QRExpiry) {
		return nil, reject(KindCredentialExpired, "credential for booking %s has expired", b.ID)
	}
	if b.ProviderID != req.ScanningProviderID {
		return nil, reject(KindNotAuthorized, "booking %s is not for this provider", b.ID)
	}

	collected, err := s.markCollected(ctx, b, now)
	if errors.Is(err, ErrInvalidTransition) {
		// Lost to a concurrent verify or cancel.
		current, gerr := s.loadBooking(ctx, b.ID)
		if gerr == nil && current.Status == models.StatusCollected {
			return nil, reject(KindAlreadyCollected, "booking %s was collected at %s", b.ID, formatTime(current.CollectedAt))
		}
		return nil, reject(KindCredentialExpired, "credential for booking %s was revoked", b.ID)
	}
	return collected, err
}

// resolvePayload maps a signed QR payload to its booking. A payload whose
// nonce no longer matches was superseded or revoked.
func (s *collectionService) resolvePayload(ctx context.Context, payload string) (*models.Booking, error) {
	parsed, err := s.signer.Parse(payload)
	if err != nil {
		return nil, reject(KindNotFound, "credential not recognised")
	}
	b, err := s.loadBooking(ctx, parsed.BookingID)
	if err != nil {
		return nil, err
	}
	if b.ListingID != parsed.ListingID {
		return nil, reject(KindNotFound, "credential not recognised")
	}
	if b.Status == models.StatusCollected {
		return b, nil
	}
	if b.Credential == nil || b.Credential.Nonce != parsed.Nonce {
		return nil, reject(KindCredentialExpired, "credential for booking %s is no longer valid", b.ID)
	}
	return b, nil
}

func (s *collectionService) resolveCode(ctx context.Context, raw string) (*models.Booking, error) {
	code, ok := utils.NormalizeCollectionCode(raw)
	if !ok {
		return nil, reject(KindNotFound, "collection code not recognised")
	}
	b, err := s.bookings.FindBookingByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(KindNotFound, "collection code not recognised")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection code: %w", err)
	}
	return b, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown time"
	}
	return t.Format(time.RFC3339)
}
