package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

func TestRequestClaim(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)

	b := f.claim(t, l, student, 3)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, 3, b.RequestedQuantity)
	assert.Equal(t, provider.UserID, b.ProviderID)
	assert.Equal(t, baseTime, b.RequestedAt)
	assert.Nil(t, b.ApprovedQuantity)
	assert.Equal(t, 7, f.remaining(t, l))
	assert.Equal(t, []models.EventType{models.EventBookingPending}, f.events.types())
	f.requireConserved(t, l)
}

func TestRequestClaimRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 10)
	bulk := f.listing(t, 60)

	tests := []struct {
		name string
		req  ClaimRequest
		want error
	}{
		{"zero quantity", ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 0}, ErrValidation},
		{"negative quantity", ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: -2}, ErrValidation},
		{"missing listing", ClaimRequest{ListingID: utils.NewSixID(), Recipient: student, Quantity: 1}, ErrNotFound},
		{"bulk inside window", ClaimRequest{ListingID: bulk.ID, Recipient: student, Quantity: 1}, ErrNotVisible},
		{"too much", ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 11}, ErrInsufficientQuantity},
		{"provider cannot claim", ClaimRequest{ListingID: l.ID, Recipient: provider, Quantity: 1}, ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.alloc.RequestClaim(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 10, f.remaining(t, l), "rejected claims change nothing")
	assert.Equal(t, 60, f.remaining(t, bulk))
	assert.Empty(t, f.events.types())
}

func TestRequestClaimBulkForPrivileged(t *testing.T) {
	f := newFixture(t)
	bulk := f.listing(t, 60)
	f.claim(t, bulk, ngo, 40)
	assert.Equal(t, 20, f.remaining(t, bulk))

	f.clock.Advance(31 * time.Minute)
	f.claim(t, bulk, student, 5)
	assert.Equal(t, 15, f.remaining(t, bulk))
}

func TestRequestClaimExpiredListing(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	f.clock.Advance(6 * time.Hour)

	_, err := f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 1})
	assert.ErrorIs(t, err, ErrListingExpired)
	assert.Equal(t, 10, f.remaining(t, l))
}

func TestRequestClaimSoldOut(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 2)
	f.claim(t, l, student, 2)

	_, err := f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: student2, Quantity: 1})
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestRequestClaimDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 2)

	_, err := f.alloc.RequestClaim(ctx, ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 1})
	assert.ErrorIs(t, err, ErrDuplicateActiveClaim)
	assert.Equal(t, 8, f.remaining(t, l))

	// Once the first booking is terminal the recipient may claim again.
	_, err = f.bookings.Cancel(ctx, b.ID, student, "")
	require.NoError(t, err)
	f.claim(t, l, student, 1)
	assert.Equal(t, 9, f.remaining(t, l))
	f.requireConserved(t, l)
}

func TestRequestClaimConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 1)

	const claimers = 25
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := models.Identity{UserID: fmt.Sprintf("r-%d", i), Role: models.RoleRecipient}
			_, errs[i] = f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: who, Quantity: 1})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientQuantity)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, f.remaining(t, l))
	f.requireConserved(t, l)
}

func TestRequestClaimConcurrentConservation(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 20)

	const claimers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := models.Identity{UserID: fmt.Sprintf("r-%d", i), Role: models.RoleRecipient}
			qty := i%3 + 1
			if _, err := f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: who, Quantity: qty}); err == nil {
				mu.Lock()
				granted += qty
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, granted, 20)
	assert.Equal(t, 20-granted, f.remaining(t, l))
	f.requireConserved(t, l)
}

func TestRequestClaimConcurrentSameRecipient(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 50)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: ngo, Quantity: 2})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateActiveClaim)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 48, f.remaining(t, l), "losing duplicates are compensated")
	f.requireConserved(t, l)
}

func TestRequestClaimCompensatesFailedInsert(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	storageDown := errors.New("write concern timeout")
	f.store.BeforeInsertBooking = func(b *models.Booking) error { return storageDown }

	_, err := f.alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, storageDown)
	_, isRejection := AsRejection(err)
	assert.False(t, isRejection, "storage failures are not business rejections")
	assert.Equal(t, 10, f.remaining(t, l))
	assert.Empty(t, f.events.types())
}

// flakyReleaseStore fails its first few releases.
type flakyReleaseStore struct {
	ListingStore
	failures int
	calls    int
}

func (s *flakyReleaseStore) ReleaseQuantity(ctx context.Context, id utils.SixID, qty int) (*models.Listing, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("server selection timeout")
	}
	return s.ListingStore.ReleaseQuantity(ctx, id, qty)
}

func TestRequestClaimRetriesCompensation(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	f.store.BeforeInsertBooking = func(b *models.Booking) error { return errors.New("write concern timeout") }

	listings := &flakyReleaseStore{ListingStore: f.store, failures: 1}
	alloc := NewAllocationService(listings, f.store, f.events, f.clock, f.cfg)

	_, err := alloc.RequestClaim(context.Background(), ClaimRequest{ListingID: l.ID, Recipient: student, Quantity: 4})
	require.Error(t, err)
	assert.Equal(t, 2, listings.calls)
	assert.Equal(t, 10, f.remaining(t, l))
}
