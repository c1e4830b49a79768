package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
	"github.com/Satyam8589/SaveServe-sub000/internal/visibility"
)

// MemoryStore keeps listings and bookings in process memory behind one mutex.
// Every method is atomic, which gives it the same guarantees the Mongo stores
// get from conditional single-document updates. Used by STORE_DRIVER=memory
// and by tests.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[utils.SixID]*models.Listing
	bookings map[utils.SixID]*models.Booking
	holds    map[string]utils.SixID
	codes    map[string]utils.SixID

	// BeforeInsertBooking, when set, runs inside InsertBooking before anything is
	// written. A non-nil error aborts the insert.
	BeforeInsertBooking func(b *models.Booking) error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[utils.SixID]*models.Listing),
		bookings: make(map[utils.SixID]*models.Booking),
		holds:    make(map[string]utils.SixID),
		codes:    make(map[string]utils.SixID),
	}
}

func copyListing(l *models.Listing) *models.Listing {
	c := *l
	if l.ExclusivityDeadline != nil {
		d := *l.ExclusivityDeadline
		c.ExclusivityDeadline = &d
	}
	return &c
}

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	if b.ApprovedQuantity != nil {
		q := *b.ApprovedQuantity
		c.ApprovedQuantity = &q
	}
	if b.Credential != nil {
		cred := *b.Credential
		c.Credential = &cred
	}
	return &c
}

// --- listings ---

func (s *MemoryStore) InsertListing(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.GenIDIfEmpty()
	if _, exists := s.listings[l.ID]; exists {
		return ErrConditionFailed
	}
	s.listings[l.ID] = copyListing(l)
	return nil
}

func (s *MemoryStore) GetListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyListing(l), nil
}

// FindVisible returns listings matching c, soonest expiry first.
func (s *MemoryStore) FindVisible(ctx context.Context, c visibility.Criteria, page Page) ([]models.Listing, error) {
	s.mu.Lock()
	var matched []models.Listing
	for _, l := range s.listings {
		if c.Matches(l) {
			matched = append(matched, *copyListing(l))
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ExpiryTime.Equal(matched[j].ExpiryTime) {
			return matched[i].ExpiryTime.Before(matched[j].ExpiryTime)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return paginate(matched, page), nil
}

func (s *MemoryStore) ListByProvider(ctx context.Context, providerID string, page Page) ([]models.Listing, error) {
	s.mu.Lock()
	var out []models.Listing
	for _, l := range s.listings {
		if l.ProviderID == providerID {
			out = append(out, *copyListing(l))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func paginate[T any](items []T, page Page) []T {
	page = page.normalized()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

// ReserveQuantity decrements remaining by qty only if the listing is active,
// unexpired at now and has at least qty remaining.
func (s *MemoryStore) ReserveQuantity(ctx context.Context, id utils.SixID, qty int, now time.Time) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !l.Active || !l.ExpiryTime.After(now) || l.Remaining < qty {
		return nil, ErrConditionFailed
	}
	l.Remaining -= qty
	l.UpdatedAt = now
	return copyListing(l), nil
}

// ReleaseQuantity adds qty back, refusing to exceed the listing total.
func (s *MemoryStore) ReleaseQuantity(ctx context.Context, id utils.SixID, qty int) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Remaining+qty > l.TotalQuantity {
		return nil, ErrConditionFailed
	}
	l.Remaining += qty
	return copyListing(l), nil
}

// CompareAndSetRemaining sets remaining to next only if it currently equals expected.
func (s *MemoryStore) CompareAndSetRemaining(ctx context.Context, id utils.SixID, expected, next int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return ErrNotFound
	}
	if l.Remaining != expected {
		return ErrConditionFailed
	}
	l.Remaining = next
	return nil
}

func (s *MemoryStore) DeactivateListing(ctx context.Context, id utils.SixID, now time.Time) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Active {
		l.Active = false
		l.UpdatedAt = now
	}
	return copyListing(l), nil
}

// DeactivateExpired switches off up to limit active listings whose expiry has
// passed and returns their ids.
func (s *MemoryStore) DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]utils.SixID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []utils.SixID
	for id, l := range s.listings {
		if len(ids) >= limit {
			break
		}
		if l.Active && !l.ExpiryTime.After(now) {
			l.Active = false
			l.UpdatedAt = now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) SetListingImage(ctx context.Context, id utils.SixID, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.ImageKey = key
	l.UpdatedAt = now
	return nil
}

// --- bookings ---

func (s *MemoryStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BeforeInsertBooking != nil {
		if err := s.BeforeInsertBooking(b); err != nil {
			return err
		}
	}
	b.GenIDIfEmpty()
	if _, exists := s.bookings[b.ID]; exists {
		return ErrConditionFailed
	}
	if b.HoldKey != "" {
		if _, held := s.holds[b.HoldKey]; held {
			return ErrDuplicateHold
		}
		s.holds[b.HoldKey] = b.ID
	}
	s.bookings[b.ID] = copyBooking(b)
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id utils.SixID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(b), nil
}

func (s *MemoryStore) FindBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(s.bookings[id]), nil
}

func (s *MemoryStore) FindActiveHold(ctx context.Context, listingID utils.SixID, recipientID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.holds[models.HoldKey(listingID, recipientID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(s.bookings[id]), nil
}

// TransitionBooking applies change only if the booking is currently in from.
func (s *MemoryStore) TransitionBooking(ctx context.Context, id utils.SixID, from models.BookingStatus, change BookingChange) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != from {
		return nil, ErrConditionFailed
	}
	if change.Credential != nil {
		if owner, taken := s.codes[change.Credential.CollectionCode]; taken && owner != id {
			return nil, ErrDuplicateCode
		}
		s.codes[change.Credential.CollectionCode] = id
	}
	holdKey := b.HoldKey
	change.apply(b)
	if b.HoldKey == "" && holdKey != "" {
		delete(s.holds, holdKey)
	}
	return copyBooking(b), nil
}

func (s *MemoryStore) filterBookings(match func(b *models.Booking) bool) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, *copyBooking(b))
		}
	}
	return out
}

func (s *MemoryStore) ListBookingsByListing(ctx context.Context, listingID utils.SixID) ([]models.Booking, error) {
	out := s.filterBookings(func(b *models.Booking) bool { return b.ListingID == listingID })
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *MemoryStore) ListBookingsByRecipient(ctx context.Context, recipientID string, page Page) ([]models.Booking, error) {
	out := s.filterBookings(func(b *models.Booking) bool { return b.RecipientID == recipientID })
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return paginate(out, page), nil
}

// FindStalePending returns pending bookings requested before cutoff.
func (s *MemoryStore) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	out := s.filterBookings(func(b *models.Booking) bool {
		return b.Status == models.StatusPending && b.RequestedAt.Before(cutoff)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return truncate(out, limit), nil
}

// FindOverdueApproved returns approved bookings whose pickup deadline is before now.
func (s *MemoryStore) FindOverdueApproved(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	out := s.filterBookings(func(b *models.Booking) bool {
		return b.Status == models.StatusApproved && b.PickupBy != nil && b.PickupBy.Before(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PickupBy.Before(*out[j].PickupBy) })
	return truncate(out, limit), nil
}

func truncate(items []models.Booking, limit int) []models.Booking {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
