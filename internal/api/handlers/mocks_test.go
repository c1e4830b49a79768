package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/Satyam8589/SaveServe-sub000/internal/api/middleware"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/services"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// --- Mocks ---

// MockListingService implements services.IListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, providerID string, in services.NewListing) (*models.Listing, error) {
	args := m.Called(ctx, providerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) GetListing(ctx context.Context, caller models.Identity, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, caller, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) ListVisible(ctx context.Context, caller models.Identity, page db.Page) ([]models.Listing, error) {
	args := m.Called(ctx, caller, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) ListProviderListings(ctx context.Context, providerID string, page db.Page) ([]models.Listing, error) {
	args := m.Called(ctx, providerID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) DeactivateListing(ctx context.Context, listingID utils.SixID, providerID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) CreateImageUpload(ctx context.Context, listingID utils.SixID, providerID, filename, contentType string) (*services.UploadTicket, error) {
	args := m.Called(ctx, listingID, providerID, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UploadTicket), args.Error(1)
}

func (m *MockListingService) SetImage(ctx context.Context, listingID utils.SixID, providerID, objectKey string) error {
	args := m.Called(ctx, listingID, providerID, objectKey)
	return args.Error(0)
}

// MockAllocationService implements services.IAllocationService
type MockAllocationService struct {
	mock.Mock
}

func (m *MockAllocationService) RequestClaim(ctx context.Context, req services.ClaimRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

// MockBookingService implements services.IBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) booking(args mock.Arguments) (*models.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) Approve(ctx context.Context, bookingID utils.SixID, providerID string, approvedQty int) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID, providerID, approvedQty))
}

func (m *MockBookingService) Reject(ctx context.Context, bookingID utils.SixID, providerID, reason string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID, providerID, reason))
}

func (m *MockBookingService) Cancel(ctx context.Context, bookingID utils.SixID, actor models.Identity, reason string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID, actor, reason))
}

func (m *MockBookingService) Expire(ctx context.Context, bookingID utils.SixID, reason string) (*models.Booking, error) {
	return m.booking(m.Called(ctx, bookingID, reason))
}

func (m *MockBookingService) Get(ctx context.Context, caller models.Identity, bookingID utils.SixID) (*models.Booking, error) {
	return m.booking(m.Called(ctx, caller, bookingID))
}

func (m *MockBookingService) ListForListing(ctx context.Context, listingID utils.SixID, providerID string) ([]models.Booking, error) {
	args := m.Called(ctx, listingID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockBookingService) ListForRecipient(ctx context.Context, recipientID string, page db.Page) ([]models.Booking, error) {
	args := m.Called(ctx, recipientID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

// MockCollectionService implements services.ICollectionService
type MockCollectionService struct {
	mock.Mock
}

func (m *MockCollectionService) IssueCredential(b *models.Booking, l *models.Listing, now time.Time) (*models.Credential, error) {
	args := m.Called(b, l, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *MockCollectionService) Verify(ctx context.Context, req services.VerifyRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

// MockInbox implements handlers.Inbox
type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) Recent(ctx context.Context, userID string, limit int) ([]models.BookingEvent, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingEvent), args.Error(1)
}

// --- Helpers ---

var (
	providerID  = models.Identity{UserID: "prov-1", Role: models.RoleProvider}
	recipientID = models.Identity{UserID: "rec-1", Role: models.RoleRecipient, Subrole: models.SubroleStudent}
)

// newTestEngine returns an engine whose requests are authenticated as caller.
func newTestEngine(caller models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyIdentity, caller)
		c.Next()
	})
	return r
}
