package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ListingsCollection = "listings"
	BookingsCollection = "bookings"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	fmt.Println("Successfully connected to MongoDB!")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the indexes the stores rely on. The hold_key and
// collection code indexes are unique and carry correctness, not just speed.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	listingIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "expiry_time", Value: 1}}},
		{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := database.Collection(ListingsCollection).Indexes().CreateMany(ctx, listingIdx); err != nil {
		return fmt.Errorf("failed to create listing indexes: %w", err)
	}

	bookingIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hold_key", Value: 1}},
			Options: options.Index().SetName("hold_key_unique").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "credential.collection_code", Value: 1}},
			Options: options.Index().SetName("collection_code_unique").SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "requested_at", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "requested_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "requested_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "pickup_by", Value: 1}}},
	}
	if _, err := database.Collection(BookingsCollection).Indexes().CreateMany(ctx, bookingIdx); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
