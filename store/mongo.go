// Package store persists extracted prices.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Field names written on every price document.
const (
	FieldOneHundred  = "oneHundred"
	FieldOneFifty    = "oneFifty"
	FieldTwoHundred  = "twoHundred"
	FieldLastUpdated = "lastUpdated"
)

// MongoStore writes prices into a MongoDB collection keyed by document id.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Connect dials uri and returns a store for database.collection along with a
// function that disconnects the client.
func Connect(ctx context.Context, uri, database, collection string) (*MongoStore, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if derr := client.Disconnect(disconnectCtx); derr != nil {
			slog.Error("disconnect mongo after failed ping", slog.Any("error", derr))
		}
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoStore(client.Database(database).Collection(collection)), client.Disconnect, nil
}

// UpsertPrices sets the three tier prices and a server side timestamp on the
// document, creating it if needed. Other fields on the document are kept.
func (s *MongoStore) UpsertPrices(ctx context.Context, documentID string, prices models.Prices) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("document id is empty")
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: documentID}},
		priceUpdate(prices),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", s.coll.Name(), documentID, err)
	}
	return nil
}

func priceUpdate(prices models.Prices) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: FieldOneHundred, Value: prices.OneHundred},
			{Key: FieldOneFifty, Value: prices.OneFifty},
			{Key: FieldTwoHundred, Value: prices.TwoHundred},
		}},
		{Key: "$currentDate", Value: bson.D{
			{Key: FieldLastUpdated, Value: true},
		}},
	}
}
