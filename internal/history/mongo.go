package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/callrunner/callrunner/internal/runner"
)

const (
	defaultMongoDatabase = "callrunner"
	runsCollection       = "runs"
)

type runDocument struct {
	ID        string         `bson:"_id"`
	StartedAt time.Time      `bson:"started_at"`
	Summary   Summary        `bson:"summary"`
	Result    *runner.Result `bson:"result,omitempty"`
}

// MongoStore keeps one document per run. A TTL index expires old runs.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects, pings and ensures the start-time index.
func NewMongoStore(ctx context.Context, uri, database string, ttl time.Duration) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(runsCollection)
	index := mongo.IndexModel{Keys: bson.D{{Key: "started_at", Value: -1}}}
	if ttl > 0 {
		index.Options = options.Index().SetExpireAfterSeconds(int32(ttl.Seconds()))
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating run index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) Record(ctx context.Context, r *runner.Result) error {
	doc := runDocument{ID: r.RunID, StartedAt: r.StartedAt, Summary: Summarize(r), Result: r}
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: r.RunID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.D{{Key: "summary", Value: 1}})

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var docs []runDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding runs: %w", err)
	}

	out := make([]Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Summary)
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, runID string) (*runner.Result, error) {
	var doc runDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return doc.Result, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
