package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoDBStore implements Store for MongoDB. Each setting is one document
// keyed by its name.
type MongoDBStore struct {
	collection *mongo.Collection
}

type settingDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBStore uses the "settings" collection of database.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBStore{collection: database.Collection("settings")}, nil
}

func (s *MongoDBStore) Get(ctx context.Context, key string) (string, bool, error) {
	var doc settingDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (s *MongoDBStore) All(ctx context.Context) (map[string]string, error) {
	cursor, err := s.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	var docs []settingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	out := make(map[string]string, len(docs))
	for _, doc := range docs {
		out[doc.Key] = doc.Value
	}
	return out, nil
}

func (s *MongoDBStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(values))
	for key, value := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: key}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "value", Value: value},
				{Key: "updated_at", Value: now},
			}}}).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: keys}}}}
	if _, err := s.collection.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}

// Close is a no-op: the client belongs to the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
