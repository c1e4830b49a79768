package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/storage"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
	"github.com/Satyam8589/SaveServe-sub000/internal/visibility"
)

// NewListing is the provider's input for CreateListing.
type NewListing struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	TotalQuantity  int              `json:"totalQuantity"`
	Unit           string           `json:"unit"`
	AvailableFrom  time.Time        `json:"availableFrom"`
	AvailableUntil time.Time        `json:"availableUntil"`
	ExpiryTime     time.Time        `json:"expiryTime"`
	Freshness      models.Freshness `json:"freshness"`
	Location       string           `json:"location"`
}

// UploadTicket is a presigned photo upload.
type UploadTicket struct {
	URL       string `json:"url"`
	ObjectKey string `json:"objectKey"`
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, providerID string, in NewListing) (*models.Listing, error)
	// GetListing returns a listing the caller may see: the owner always,
	// recipients subject to visibility.
	GetListing(ctx context.Context, caller models.Identity, listingID utils.SixID) (*models.Listing, error)
	ListVisible(ctx context.Context, caller models.Identity, page db.Page) ([]models.Listing, error)
	ListProviderListings(ctx context.Context, providerID string, page db.Page) ([]models.Listing, error)
	DeactivateListing(ctx context.Context, listingID utils.SixID, providerID string) (*models.Listing, error)
	CreateImageUpload(ctx context.Context, listingID utils.SixID, providerID, filename, contentType string) (*UploadTicket, error)
	SetImage(ctx context.Context, listingID utils.SixID, providerID, objectKey string) error
}

// listingService implements IListingService.
type listingService struct {
	listings ListingStore
	images   storage.IS3Storage // nil when uploads are not configured
	clock    clock.Clock
	cfg      *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(listings ListingStore, images storage.IS3Storage, clk clock.Clock, cfg *config.Config) IListingService {
	return &listingService{listings: listings, images: images, clock: clk, cfg: cfg}
}

// CreateListing publishes a new active listing. Listings at or above the bulk
// threshold start in their exclusivity window.
func (s *listingService) CreateListing(ctx context.Context, providerID string, in NewListing) (*models.Listing, error) {
	now := s.clock.Now()

	title := strings.TrimSpace(in.Title)
	switch {
	case providerID == "":
		return nil, reject(KindValidation, "provider id is required")
	case title == "":
		return nil, reject(KindValidation, "title is required")
	case len(title) > 200:
		return nil, reject(KindValidation, "title must be at most 200 characters")
	case in.TotalQuantity < 1:
		return nil, reject(KindValidation, "totalQuantity must be at least 1")
	case in.ExpiryTime.IsZero() || !in.ExpiryTime.After(now):
		return nil, reject(KindValidation, "expiryTime must be in the future")
	case !in.Freshness.Valid():
		return nil, reject(KindValidation, "unknown freshness %d", in.Freshness)
	case !in.AvailableFrom.IsZero() && !in.AvailableUntil.IsZero() && !in.AvailableUntil.After(in.AvailableFrom):
		return nil, reject(KindValidation, "availableUntil must be after availableFrom")
	}

	listing := &models.Listing{
		ProviderID:     providerID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		TotalQuantity:  in.TotalQuantity,
		Remaining:      in.TotalQuantity,
		Unit:           in.Unit,
		AvailableFrom:  in.AvailableFrom.UTC(),
		AvailableUntil: in.AvailableUntil.UTC(),
		ExpiryTime:     in.ExpiryTime.UTC(),
		Freshness:      in.Freshness,
		Location:       strings.TrimSpace(in.Location),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if listing.AvailableFrom.IsZero() {
		listing.AvailableFrom = now
	}
	if listing.AvailableUntil.IsZero() {
		listing.AvailableUntil = listing.ExpiryTime
	}
	if in.TotalQuantity >= s.cfg.BulkThreshold {
		deadline := now.Add(s.cfg.ExclusivityWindow)
		listing.BulkExclusive = true
		listing.ExclusivityDeadline = &deadline
	}

	if err := s.listings.InsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to insert listing: %w", err)
	}
	log.Printf("[Listings] Provider %s created listing %s (qty %d, bulk %t)", providerID, listing.ID, listing.TotalQuantity, listing.BulkExclusive)
	return listing, nil
}

func (s *listingService) GetListing(ctx context.Context, caller models.Identity, listingID utils.SixID) (*models.Listing, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.ProviderID == caller.UserID || caller.Role == models.RoleAdmin {
		return listing, nil
	}
	if !visibility.IsVisible(listing, caller.Role, caller.Subrole, s.clock.Now()) {
		// Indistinguishable from a missing listing for callers who cannot see it.
		return nil, reject(KindNotFound, "listing %s not found", listingID)
	}
	return listing, nil
}

func (s *listingService) ListVisible(ctx context.Context, caller models.Identity, page db.Page) ([]models.Listing, error) {
	criteria := visibility.For(caller.Role, caller.Subrole, s.clock.Now())
	listings, err := s.listings.FindVisible(ctx, criteria, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible listings: %w", err)
	}
	return listings, nil
}

func (s *listingService) ListProviderListings(ctx context.Context, providerID string, page db.Page) ([]models.Listing, error) {
	listings, err := s.listings.ListByProvider(ctx, providerID, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider listings: %w", err)
	}
	return listings, nil
}

// DeactivateListing hides the listing from new claims. Outstanding bookings
// are left alone. Deactivating twice is not an error.
func (s *listingService) DeactivateListing(ctx context.Context, listingID utils.SixID, providerID string) (*models.Listing, error) {
	listing, err := s.owned(ctx, listingID, providerID)
	if err != nil {
		return nil, err
	}
	if !listing.Active {
		return listing, nil
	}
	updated, err := s.listings.DeactivateListing(ctx, listingID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate listing %s: %w", listingID, err)
	}
	log.Printf("[Listings] Provider %s deactivated listing %s", providerID, listingID)
	return updated, nil
}

func (s *listingService) CreateImageUpload(ctx context.Context, listingID utils.SixID, providerID, filename, contentType string) (*UploadTicket, error) {
	if s.images == nil {
		return nil, reject(KindValidation, "photo uploads are not configured")
	}
	if _, err := s.owned(ctx, listingID, providerID); err != nil {
		return nil, err
	}
	url, key, err := s.images.GeneratePresignedPutURL(ctx, providerID, listingID.String(), filename, contentType)
	if errors.Is(err, storage.ErrUnsupportedContentType) {
		return nil, reject(KindValidation, "%v", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create upload url: %w", err)
	}
	return &UploadTicket{URL: url, ObjectKey: key}, nil
}

func (s *listingService) SetImage(ctx context.Context, listingID utils.SixID, providerID, objectKey string) error {
	if s.images == nil {
		return reject(KindValidation, "photo uploads are not configured")
	}
	if _, err := s.owned(ctx, listingID, providerID); err != nil {
		return err
	}
	if !s.images.OwnsKey(providerID, listingID.String(), objectKey) {
		return reject(KindValidation, "object key does not belong to this listing")
	}
	if err := s.listings.SetListingImage(ctx, listingID, objectKey, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to set listing image: %w", err)
	}
	return nil
}

func (s *listingService) load(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	listing, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(KindNotFound, "listing %s not found", listingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	return listing, nil
}

func (s *listingService) owned(ctx context.Context, listingID utils.SixID, providerID string) (*models.Listing, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.ProviderID != providerID {
		return nil, reject(KindNotAuthorized, "listing %s belongs to another provider", listingID)
	}
	return listing, nil
}
