package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStorage maps each collection to a MongoDB collection, using the
// record key as _id.
type MongoStorage struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStorage(ctx context.Context, uri, database string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	slog.Info("connected to mongo", slog.String("database", database))
	return &MongoStorage{client: client, db: client.Database(database)}, nil
}

func (s *MongoStorage) Upsert(ctx context.Context, collection, key string, record any) error {
	if key == "" {
		return ErrEmptyKey
	}
	doc, err := toBSON(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStorage) Find(ctx context.Context, collection string, filter Filter, limit int) ([]json.RawMessage, error) {
	query, err := filterBSON(filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []json.RawMessage
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		delete(doc, "_id")

		data, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", collection, err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, cursor.Err()
}

func (s *MongoStorage) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	query, err := filterBSON(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Search matches the query case-insensitively against title and description.
func (s *MongoStorage) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"title": pattern},
		bson.M{"description": pattern},
	}}

	coll := s.db.Collection(CollectionPages)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search count: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "relevance", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search: %w", err)
	}
	defer cursor.Close(ctx)

	var results []SearchResult
	for cursor.Next(ctx) {
		var page struct {
			URL         string `bson:"url"`
			Title       string `bson:"title"`
			Description string `bson:"description"`
			Relevance   int    `bson:"relevance"`
		}
		if err := cursor.Decode(&page); err != nil {
			return SearchResponse{}, err
		}
		results = append(results, SearchResult{
			URL:     page.URL,
			Title:   page.Title,
			Snippet: page.Description,
			Rank:    float64(page.Relevance),
		})
	}
	if err := cursor.Err(); err != nil {
		return SearchResponse{}, err
	}

	return SearchResponse{Results: results, TotalCount: int(total)}, nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// toBSON converts a record through its JSON form so documents carry the
// same field names regardless of backend.
func toBSON(record any) (bson.M, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func filterBSON(f Filter) (bson.M, error) {
	if len(f) == 0 {
		return bson.M{}, nil
	}
	doc, err := toBSON(f)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	return doc, nil
}
