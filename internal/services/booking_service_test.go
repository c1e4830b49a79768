package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

func TestApprovePartialReleasesDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 20)
	b := f.claim(t, l, student, 10)
	require.Equal(t, 10, f.remaining(t, l))

	approved, err := f.bookings.Approve(ctx, b.ID, provider.UserID, 6)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedQuantity)
	assert.Equal(t, 6, *approved.ApprovedQuantity)
	assert.Equal(t, baseTime, *approved.ApprovedAt)
	assert.Equal(t, 14, f.remaining(t, l), "4 released on partial approval")
	require.NotNil(t, approved.Credential)
	assert.NotEmpty(t, approved.Credential.QRPayload)
	assert.Len(t, approved.Credential.CollectionCode, 8)
	assert.NotEmpty(t, approved.HoldKey, "hold kept while approved")
	f.requireConserved(t, l)

	cancelled, err := f.bookings.Cancel(ctx, b.ID, student, "cannot make it")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, "cannot make it", cancelled.Reason)
	assert.Equal(t, 20, f.remaining(t, l), "cancel releases the approved 6")
	f.requireConserved(t, l)

	assert.Equal(t, []models.EventType{
		models.EventBookingPending, models.EventBookingApproved, models.EventBookingCancelled,
	}, f.events.types())
}

func TestApproveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 5)

	_, err := f.bookings.Approve(ctx, b.ID, provider2.UserID, 5)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.bookings.Approve(ctx, b.ID, provider.UserID, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.bookings.Approve(ctx, b.ID, provider.UserID, 6)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, models.StatusPending, f.reload(t, b).Status)
	assert.Equal(t, 5, f.remaining(t, l))
}

func TestApproveAfterListingExpired(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 5)
	f.clock.Advance(7 * time.Hour)

	_, err := f.bookings.Approve(context.Background(), b.ID, provider.UserID, 5)
	assert.ErrorIs(t, err, ErrListingExpired)
	assert.Equal(t, models.StatusPending, f.reload(t, b).Status)
}

func TestRejectReleasesRequested(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 7)

	rejected, err := f.bookings.Reject(context.Background(), b.ID, provider.UserID, "reserved for staff")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "reserved for staff", rejected.Reason)
	assert.Nil(t, rejected.ApprovedQuantity)
	assert.Equal(t, 10, f.remaining(t, l))
	f.requireConserved(t, l)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 10)
	b := f.claim(t, l, student, 2)

	_, err := f.bookings.Cancel(ctx, b.ID, student2, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.bookings.Cancel(ctx, b.ID, provider2, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.bookings.Cancel(ctx, b.ID, provider, "ran out")
	require.NoError(t, err, "the listing's provider may cancel")
	assert.Equal(t, 10, f.remaining(t, l))
}

type transitionOp struct {
	name string
	to   models.BookingStatus
	run  func(f *fixture, b *models.Booking) error
}

func transitionOps() []transitionOp {
	ctx := context.Background()
	return []transitionOp{
		{"approve", models.StatusApproved, func(f *fixture, b *models.Booking) error {
			_, err := f.bookings.Approve(ctx, b.ID, provider.UserID, b.RequestedQuantity)
			return err
		}},
		{"reject", models.StatusRejected, func(f *fixture, b *models.Booking) error {
			_, err := f.bookings.Reject(ctx, b.ID, provider.UserID, "no")
			return err
		}},
		{"cancel", models.StatusCancelled, func(f *fixture, b *models.Booking) error {
			_, err := f.bookings.Cancel(ctx, b.ID, student, "no")
			return err
		}},
		{"expire", models.StatusExpired, func(f *fixture, b *models.Booking) error {
			_, err := f.bookings.Expire(ctx, b.ID, ReasonPickupMissed)
			return err
		}},
		{"collect", models.StatusCollected, func(f *fixture, b *models.Booking) error {
			_, err := f.bookings.(*bookingService).markCollected(ctx, b, f.clock.Now())
			return err
		}},
	}
}

func TestTransitionLegalityGrid(t *testing.T) {
	for _, from := range models.AllBookingStatuses {
		for _, op := range transitionOps() {
			from, op := from, op
			t.Run(string(from)+"/"+op.name, func(t *testing.T) {
				f := newFixture(t)
				l, b := f.bookingIn(t, from)
				before := f.reload(t, b)
				remainingBefore := f.remaining(t, l)

				err := op.run(f, before)
				if from.CanTransitionTo(op.to) {
					require.NoError(t, err)
					assert.Equal(t, op.to, f.reload(t, b).Status)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, before, f.reload(t, b), "illegal transition leaves booking unchanged")
					assert.Equal(t, remainingBefore, f.remaining(t, l))
				}
				f.requireConserved(t, l)
			})
		}
	}
}

func TestTerminalStatesReleaseHold(t *testing.T) {
	for _, status := range []models.BookingStatus{
		models.StatusRejected, models.StatusCancelled, models.StatusExpired, models.StatusCollected,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			l, b := f.bookingIn(t, status)
			assert.Empty(t, f.reload(t, b).HoldKey)
			_, err := f.store.FindActiveHold(context.Background(), l.ID, student.UserID)
			assert.ErrorIs(t, err, db.ErrNotFound)
		})
	}
}

func TestConcurrentApproveAndCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		l := f.listing(t, 10)
		b := f.claim(t, l, student, 8)

		var wg sync.WaitGroup
		var approveErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.bookings.Approve(ctx, b.ID, provider.UserID, 5)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.bookings.Cancel(ctx, b.ID, student, "")
		}()
		wg.Wait()

		final := f.reload(t, b)
		switch final.Status {
		case models.StatusApproved:
			require.NoError(t, approveErr)
			assert.ErrorIs(t, cancelErr, ErrInvalidTransition)
			assert.Equal(t, 5, f.remaining(t, l))
		case models.StatusCancelled:
			require.NoError(t, cancelErr)
			if approveErr == nil {
				// Approve won first, then cancel released the approved amount.
				assert.Equal(t, 10, f.remaining(t, l))
			} else {
				assert.ErrorIs(t, approveErr, ErrInvalidTransition)
				assert.Equal(t, 10, f.remaining(t, l))
			}
		default:
			t.Fatalf("unexpected final status %s", final.Status)
		}
		f.requireConserved(t, l)
	}
}

func TestGetBookingVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, b := f.bookingIn(t, models.StatusApproved)

	mine, err := f.bookings.Get(ctx, student, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, mine.Credential, "recipient sees the credential")

	theirs, err := f.bookings.Get(ctx, provider, b.ID)
	require.NoError(t, err)
	assert.Nil(t, theirs.Credential, "provider never sees the credential")

	_, err = f.bookings.Get(ctx, student2, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 10)
	f.claim(t, l, student, 1)
	f.clock.Advance(time.Second)
	b2 := f.claim(t, l, student2, 2)
	_, err := f.bookings.Approve(ctx, b2.ID, provider.UserID, 2)
	require.NoError(t, err)

	onListing, err := f.bookings.ListForListing(ctx, l.ID, provider.UserID)
	require.NoError(t, err)
	require.Len(t, onListing, 2)
	assert.Equal(t, student.UserID, onListing[0].RecipientID)
	assert.Nil(t, onListing[1].Credential)

	_, err = f.bookings.ListForListing(ctx, l.ID, provider2.UserID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	mine, err := f.bookings.ListForRecipient(ctx, student2.UserID, db.Page{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.NotNil(t, mine[0].Credential)
}
