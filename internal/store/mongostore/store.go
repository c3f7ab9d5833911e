package mongostore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/chatdb/chatdb/internal/docvalue"
	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/query"
)

type Config struct {
	URI      string
	Database string
}

type database interface {
	ListCollectionNames(ctx context.Context) ([]string, error)
	Find(ctx context.Context, collection string, limit int64) ([]bson.D, error)
	Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Store struct {
	db database
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := &mongoDatabase{client: client, db: client.Database(cfg.Database)}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{db: db}, nil
}

func newWithDatabase(db database) *Store {
	return &Store{db: db}
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping mongo: %v", profile.ErrSourceUnavailable, err)
	}
	return nil
}

func (s *Store) ListSources(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", profile.ErrSourceUnavailable, err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) SampleDocuments(ctx context.Context, collection string, limit int) ([]bson.D, error) {
	docs, err := s.db.Find(ctx, collection, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("sample documents: %w", err)
	}
	return docs, nil
}

// Execute runs a rendered pipeline. Columns are the union of top-level keys
// in first-seen order and rows hold nil where a document lacks a key.
func (s *Store) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if request.Query.Kind != query.KindPipeline {
		return query.Result{}, fmt.Errorf("mongo store cannot execute %s queries", request.Query.Kind)
	}
	if strings.TrimSpace(request.Query.Source) == "" {
		return query.Result{}, fmt.Errorf("collection is required")
	}
	pipeline := request.Query.Pipeline()
	if request.RowLimit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(request.RowLimit)}})
	}

	start := time.Now()
	docs, err := s.db.Aggregate(ctx, request.Query.Source, pipeline)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute pipeline: %w", err)
	}

	positions := map[string]int{}
	columns := make([]string, 0)
	for _, doc := range docs {
		for _, elem := range doc {
			if _, ok := positions[elem.Key]; !ok {
				positions[elem.Key] = len(columns)
				columns = append(columns, elem.Key)
			}
		}
	}
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		for _, elem := range doc {
			row[positions[elem.Key]] = plain(docvalue.Normalize(elem.Value))
		}
		rows = append(rows, row)
	}
	return query.Result{Columns: columns, Rows: rows, Duration: time.Since(start)}, nil
}

// plain converts nested documents and arrays into maps and slices so results
// encode as ordinary JSON.
func plain(value any) any {
	switch typed := value.(type) {
	case bson.D:
		out := make(map[string]any, len(typed))
		for _, elem := range typed {
			out[elem.Key] = plain(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, 0, len(typed))
		for _, elem := range typed {
			out = append(out, plain(elem))
		}
		return out
	case bson.ObjectID:
		return typed.Hex()
	default:
		return value
	}
}

type mongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

func (m *mongoDatabase) ListCollectionNames(ctx context.Context) ([]string, error) {
	return m.db.ListCollectionNames(ctx, bson.D{})
}

func (m *mongoDatabase) Find(ctx context.Context, collection string, limit int64) ([]bson.D, error) {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	docs := make([]bson.D, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *mongoDatabase) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error) {
	cursor, err := m.db.Collection(collection).Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, err
	}
	docs := make([]bson.D, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *mongoDatabase) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *mongoDatabase) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
