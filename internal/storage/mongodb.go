package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoStorage struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB connects to MongoDB and selects cfg.Database.
func NewMongoDB(ctx context.Context, cfg MongoDBConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &mongoStorage{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

func (s *mongoStorage) Type() string                   { return TypeMongoDB }
func (s *mongoStorage) SQLiteDB() *sql.DB              { return nil }
func (s *mongoStorage) PostgreSQLPool() *pgxpool.Pool  { return nil }
func (s *mongoStorage) MongoDatabase() *mongo.Database { return s.database }

func (s *mongoStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *mongoStorage) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
