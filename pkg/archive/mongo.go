package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/provtools/provtrace/pkg/provio"
)

// MongoConfig configures a MongoDB-backed archive.
type MongoConfig struct {
	// URI is the MongoDB connection string, e.g. mongodb://localhost:27017.
	URI string

	// Database name. Defaults to "provtrace".
	Database string

	// Collection name. Defaults to "runs".
	Collection string
}

// MongoStore is a MongoDB-backed archive. Safe for concurrent use.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// record is the stored shape: the listing summary plus the full document.
type record struct {
	Entry    `bson:",inline"`
	Document *provio.Document `bson:"document"`
}

// NewMongoStore connects to MongoDB and verifies the connection with a
// ping before returning the store.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = "provtrace"
	}
	if cfg.Collection == "" {
		cfg.Collection = "runs"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Put upserts the document under its session id.
func (s *MongoStore) Put(ctx context.Context, doc *provio.Document) error {
	if doc.Manifest.SessionID == "" {
		return fmt.Errorf("document has no session id")
	}
	rec := record{
		Entry:    entryFor(doc, time.Now().UTC()),
		Document: doc,
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": doc.Manifest.SessionID},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", doc.Manifest.SessionID, err)
	}
	return nil
}

// Get fetches a session's document.
func (s *MongoStore) Get(ctx context.Context, sessionID string) (*provio.Document, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", sessionID, err)
	}
	return rec.Document, nil
}

// List returns summaries of every archived run, most recently stored
// first. The full documents are not fetched.
func (s *MongoStore) List(ctx context.Context) ([]Entry, error) {
	opts := options.Find().
		SetProjection(bson.M{"document": 0}).
		SetSort(bson.M{"stored": -1})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer cur.Close(ctx)

	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entries, nil
}

// Delete removes a session's document.
func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return fmt.Errorf("delete %s: %w", sessionID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
