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
	"github.com/Satyam8589/SaveServe-sub000/internal/visibility"
)

// MongoListingStore persists listings. Remaining quantity is only ever changed
// with single-document conditional updates.
type MongoListingStore struct {
	coll *mongo.Collection
}

func NewMongoListingStore(database *mongo.Database) *MongoListingStore {
	return &MongoListingStore{coll: database.Collection(ListingsCollection)}
}

func (s *MongoListingStore) InsertListing(ctx context.Context, l *models.Listing) error {
	fixedID := !l.ID.IsZero()
	return Try(func() error {
		if !fixedID {
			l.ID = utils.NewSixID()
		}
		_, err := s.coll.InsertOne(ctx, l)
		if err != nil {
			return fmt.Errorf("failed to insert listing: %w", err)
		}
		return nil
	})
}

func (s *MongoListingStore) GetListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	var l models.Listing
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing %s: %w", id, err)
	}
	return &l, nil
}

// FindVisible applies the visibility criteria as a query filter.
func (s *MongoListingStore) FindVisible(ctx context.Context, c visibility.Criteria, page Page) ([]models.Listing, error) {
	filter, ok := c.BSON()
	if !ok {
		return []models.Listing{}, nil
	}
	page = page.normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "expiry_time", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	return s.find(ctx, filter, opts)
}

func (s *MongoListingStore) ListByProvider(ctx context.Context, providerID string, page Page) ([]models.Listing, error) {
	page = page.normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	return s.find(ctx, bson.M{"provider_id": providerID}, opts)
}

func (s *MongoListingStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Listing, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

// ReserveQuantity is the atomic compare-and-decrement on remaining_quantity.
// The guard and the $inc are evaluated by the server on one document, so two
// callers can never both take the last units.
func (s *MongoListingStore) ReserveQuantity(ctx context.Context, id utils.SixID, qty int, now time.Time) (*models.Listing, error) {
	filter := bson.M{
		"_id":                id,
		"active":             true,
		"expiry_time":        bson.M{"$gt": now},
		"remaining_quantity": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"remaining_quantity": -qty},
		"$set": bson.M{"updated_at": now},
	}
	return s.findAndUpdate(ctx, id, filter, update)
}

// ReleaseQuantity adds qty back, refusing to push remaining above the total.
func (s *MongoListingStore) ReleaseQuantity(ctx context.Context, id utils.SixID, qty int) (*models.Listing, error) {
	filter := bson.M{
		"_id": id,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$remaining_quantity", qty}},
			"$total_quantity",
		}},
	}
	update := bson.M{"$inc": bson.M{"remaining_quantity": qty}}
	return s.findAndUpdate(ctx, id, filter, update)
}

func (s *MongoListingStore) CompareAndSetRemaining(ctx context.Context, id utils.SixID, expected, next int) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "remaining_quantity": expected},
		bson.M{"$set": bson.M{"remaining_quantity": next}},
	)
	if err != nil {
		return fmt.Errorf("failed to set remaining on listing %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return s.diagnose(ctx, id)
	}
	return nil
}

func (s *MongoListingStore) DeactivateListing(ctx context.Context, id utils.SixID, now time.Time) (*models.Listing, error) {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": now}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate listing %s: %w", id, err)
	}
	return s.GetListing(ctx, id)
}

// DeactivateExpired switches off up to limit expired listings. Ids are
// collected first, then each is flipped with a guarded update so a listing
// reactivated in between is left alone.
func (s *MongoListingStore) DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]utils.SixID, error) {
	filter := bson.M{"active": true, "expiry_time": bson.M{"$lte": now}}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetLimit(int64(limit))
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired listings: %w", err)
	}
	var rows []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode expired listings: %w", err)
	}

	ids := make([]utils.SixID, 0, len(rows))
	for _, row := range rows {
		res, err := s.coll.UpdateOne(ctx,
			bson.M{"_id": row.ID, "active": true, "expiry_time": bson.M{"$lte": now}},
			bson.M{"$set": bson.M{"active": false, "updated_at": now}},
		)
		if err != nil {
			return ids, fmt.Errorf("failed to deactivate listing %s: %w", row.ID, err)
		}
		if res.ModifiedCount > 0 {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (s *MongoListingStore) SetListingImage(ctx context.Context, id utils.SixID, key string, now time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"image_key": key, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("failed to set image on listing %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoListingStore) findAndUpdate(ctx context.Context, id utils.SixID, filter, update bson.M) (*models.Listing, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var l models.Listing
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.diagnose(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", id, err)
	}
	return &l, nil
}

// diagnose tells a missing listing apart from a failed guard after a
// conditional update matched nothing.
func (s *MongoListingStore) diagnose(ctx context.Context, id utils.SixID) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check listing %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}
