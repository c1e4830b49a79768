package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// MongoBookingStore persists bookings. Status only changes through
// TransitionBooking, a compare-and-set on the current status.
type MongoBookingStore struct {
	coll *mongo.Collection
}

func NewMongoBookingStore(database *mongo.Database) *MongoBookingStore {
	return &MongoBookingStore{coll: database.Collection(BookingsCollection)}
}

// InsertBooking writes a new booking. The unique sparse index on hold_key turns
// a second active claim by the same recipient into ErrDuplicateHold.
func (s *MongoBookingStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	fixedID := !b.ID.IsZero()
	err := WithRetries(func() error {
		if !fixedID {
			b.ID = utils.NewSixID()
		}
		_, err := s.coll.InsertOne(ctx, b)
		return err
	}, DefaultMaxRetries, func(err error) bool {
		return !fixedID && isDuplicateOn(err, "_id_")
	})
	switch {
	case err == nil:
		return nil
	case isDuplicateOn(err, "hold_key_unique"):
		return ErrDuplicateHold
	default:
		return fmt.Errorf("failed to insert booking: %w", err)
	}
}

func (s *MongoBookingStore) GetBooking(ctx context.Context, id utils.SixID) (*models.Booking, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoBookingStore) FindBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	return s.findOne(ctx, bson.M{"credential.collection_code": code})
}

func (s *MongoBookingStore) FindActiveHold(ctx context.Context, listingID utils.SixID, recipientID string) (*models.Booking, error) {
	return s.findOne(ctx, bson.M{"hold_key": models.HoldKey(listingID, recipientID)})
}

func (s *MongoBookingStore) findOne(ctx context.Context, filter bson.M) (*models.Booking, error) {
	var b models.Booking
	err := s.coll.FindOne(ctx, filter).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &b, nil
}

// TransitionBooking moves a booking from `from` to change.To in one
// conditional update. ErrConditionFailed means someone else moved it first.
func (s *MongoBookingStore) TransitionBooking(ctx context.Context, id utils.SixID, from models.BookingStatus, change BookingChange) (*models.Booking, error) {
	set := bson.M{
		"status":                   change.To,
		timestampField(change.To): change.At,
	}
	if change.Reason != "" {
		set["reason"] = change.Reason
	}
	if change.ApprovedQuantity != nil {
		set["approved_quantity"] = *change.ApprovedQuantity
	}
	if change.PickupBy != nil {
		set["pickup_by"] = *change.PickupBy
	}
	if change.Credential != nil {
		set["credential"] = change.Credential
	} else if change.RevokeCredential {
		set["credential.nonce"] = ""
	}
	update := bson.M{"$set": set}
	if change.To.Terminal() {
		update["$unset"] = bson.M{"hold_key": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var b models.Booking
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, update, opts).Decode(&b)
	switch {
	case err == nil:
		return &b, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		n, cerr := s.coll.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return nil, fmt.Errorf("failed to check booking %s: %w", id, cerr)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrConditionFailed
	case isDuplicateOn(err, "collection_code_unique"):
		return nil, ErrDuplicateCode
	default:
		return nil, fmt.Errorf("failed to transition booking %s: %w", id, err)
	}
}

func (s *MongoBookingStore) ListBookingsByListing(ctx context.Context, listingID utils.SixID) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}})
	return s.find(ctx, bson.M{"listing_id": listingID}, opts)
}

func (s *MongoBookingStore) ListBookingsByRecipient(ctx context.Context, recipientID string, page Page) ([]models.Booking, error) {
	page = page.normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "requested_at", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	return s.find(ctx, bson.M{"recipient_id": recipientID}, opts)
}

func (s *MongoBookingStore) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}}).SetLimit(int64(limit))
	return s.find(ctx, bson.M{"status": models.StatusPending, "requested_at": bson.M{"$lt": cutoff}}, opts)
}

func (s *MongoBookingStore) FindOverdueApproved(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "pickup_by", Value: 1}}).SetLimit(int64(limit))
	return s.find(ctx, bson.M{"status": models.StatusApproved, "pickup_by": bson.M{"$lt": now}}, opts)
}

func (s *MongoBookingStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Booking, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}
