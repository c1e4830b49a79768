package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Satyam8589/SaveServe-sub000/internal/auth"
	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

var (
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	provider  = models.Identity{UserID: "prov-1", Role: models.RoleProvider}
	provider2 = models.Identity{UserID: "prov-2", Role: models.RoleProvider}
	ngo       = models.Identity{UserID: "ngo-1", Role: models.RoleRecipient, Subrole: models.SubroleNGO}
	student   = models.Identity{UserID: "stu-1", Role: models.RoleRecipient, Subrole: models.SubroleStudent}
	student2  = models.Identity{UserID: "stu-2", Role: models.RoleRecipient, Subrole: models.SubroleStudent}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e models.BookingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store  *db.MemoryStore
	clock  *clock.Manual
	cfg    *config.Config
	events *recordingPublisher

	listings   IListingService
	alloc      IAllocationService
	bookings   IBookingService
	collection ICollectionService
	sweeper    ISweeperService
}

func testConfig() *config.Config {
	return &config.Config{
		BulkThreshold:      50,
		ExclusivityWindow:  30 * time.Minute,
		RequestTimeout:     2 * time.Hour,
		CredentialTTL:      12 * time.Hour,
		SweepBatchSize:     100,
		MaxRequestQuantity: 10000,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  db.NewMemoryStore(),
		clock:  clock.NewManual(baseTime),
		cfg:    testConfig(),
		events: &recordingPublisher{},
	}
	signer := auth.NewCredentialSigner("test-credential-secret")
	f.listings = NewListingService(f.store, nil, f.clock, f.cfg)
	f.alloc = NewAllocationService(f.store, f.store, f.events, f.clock, f.cfg)
	f.bookings = NewBookingService(f.store, f.store, signer, f.events, f.clock, f.cfg)
	f.collection = NewCollectionService(f.store, f.store, signer, f.events, f.clock, f.cfg)
	f.sweeper = NewSweeperService(f.store, f.store, f.bookings, f.clock, f.cfg)
	return f
}

// listing creates an active listing owned by provider that expires in 6h.
func (f *fixture) listing(t *testing.T, qty int) *models.Listing {
	t.Helper()
	l, err := f.listings.CreateListing(context.Background(), provider.UserID, NewListing{
		Title:         fmt.Sprintf("Dal and rice x%d", qty),
		TotalQuantity: qty,
		Unit:          "plates",
		ExpiryTime:    f.clock.Now().Add(6 * time.Hour),
		Location:      "Hall B kitchen",
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) claim(t *testing.T, l *models.Listing, who models.Identity, qty int) *models.Booking {
	t.Helper()
	b, err := f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: who, Quantity: qty})
	require.NoError(t, err)
	return b
}

func (f *fixture) remaining(t *testing.T, l *models.Listing) int {
	t.Helper()
	current, err := f.store.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	return current.Remaining
}

func (f *fixture) reload(t *testing.T, b *models.Booking) *models.Booking {
	t.Helper()
	current, err := f.store.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	return current
}

// requireConserved checks remaining + held + collected == total.
func (f *fixture) requireConserved(t *testing.T, l *models.Listing) {
	t.Helper()
	current, err := f.store.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	bookings, err := f.store.ListBookingsByListing(context.Background(), l.ID)
	require.NoError(t, err)
	sum := current.Remaining
	for i := range bookings {
		sum += bookings[i].HeldQuantity() + bookings[i].ConsumedQuantity()
	}
	require.Equal(t, current.TotalQuantity, sum, "quantity not conserved on listing %s", l.ID)
	require.GreaterOrEqual(t, current.Remaining, 0)
}

// bookingIn returns a booking for 4 units on a fresh listing of 10, driven into status.
func (f *fixture) bookingIn(t *testing.T, status models.BookingStatus) (*models.Listing, *models.Booking) {
	t.Helper()
	ctx := context.Background()
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 4)

	var err error
	switch status {
	case models.StatusPending:
	case models.StatusApproved:
		b, err = f.bookings.Approve(ctx, b.ID, provider.UserID, 4)
	case models.StatusRejected:
		b, err = f.bookings.Reject(ctx, b.ID, provider.UserID, "closing early")
	case models.StatusCancelled:
		b, err = f.bookings.Cancel(ctx, b.ID, student, "plans changed")
	case models.StatusExpired:
		b, err = f.bookings.Expire(ctx, b.ID, ReasonRequestTimedOut)
	case models.StatusCollected:
		b, err = f.bookings.Approve(ctx, b.ID, provider.UserID, 4)
		require.NoError(t, err)
		b, err = f.collection.Verify(ctx, VerifyRequest{QRPayload: b.Credential.QRPayload, ScanningProviderID: provider.UserID})
	}
	require.NoError(t, err)
	require.Equal(t, status, b.Status)
	return l, b
}
