/*
Package mongo provides a MongoDB-backed implementation of generic.DocumentStore.

PURPOSE:
  One MongoDB collection per record collection. Documents are stored
  natively (timestamps as BSON datetimes, millisecond precision), so the
  pushed range filter and sort run on the server.

MISSING INDEX DETECTION:
  MongoDB executes unindexed queries by default. Two server-side modes
  turn that into a failure the engine recovers from:
  - notablescan: the server refuses collection scans with
    NoQueryExecutionPlans (code 291)
  - RequireIndexes: every sorted query is hinted with the name of the
    composite index that serves its shape; a hint naming an index that does
    not exist fails with BadValue (code 2)
  Both are recognized by IsRetryableAsFullScan, which the engine picks up
  through generic.IndexErrorClassifier. Native errors are returned as-is.

INDEXES:
  EnsureIndex creates {owner: 1, eq...: 1, range: 1, _id: 1} named after
  generic.IndexSpec.Name(). EnsureOwnerIndex creates {owner: 1}, which the
  fallback scan needs under notablescan.

USAGE:
  store, err := mongo.New(ctx, "mongodb://localhost:27017", "tracker")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close(ctx)

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite/sqlite.go: SQLite implementation
*/
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/tracker/generic"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	codeBadValue              = 2
	codeNoQueryExecutionPlans = 291
)

// Store implements generic.DocumentStore using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// RequireIndexes hints every sorted query with its composite index.
	RequireIndexes bool
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// =============================================================================
// INDEXES
// =============================================================================

// EnsureIndex creates the composite index for spec.
func (s *Store) EnsureIndex(ctx context.Context, spec generic.IndexSpec) error {
	keys := bson.D{{Key: spec.OwnerField, Value: 1}}
	for _, f := range spec.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	keys = append(keys, bson.E{Key: spec.RangeField, Value: 1}, bson.E{Key: "_id", Value: 1})

	_, err := s.db.Collection(spec.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName(spec.Name()),
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name(), err)
	}
	return nil
}

// EnsureOwnerIndex creates the single-field owner index.
func (s *Store) EnsureOwnerIndex(ctx context.Context, m generic.Mapping) error {
	_, err := s.db.Collection(m.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: m.OwnerField, Value: 1}},
		Options: options.Index().SetName("idx_" + m.Collection + "_" + m.OwnerField),
	})
	return err
}

// IsRetryableAsFullScan recognizes MongoDB's missing-index failures.
func (s *Store) IsRetryableAsFullScan(err error) bool {
	return IsMissingIndex(err)
}

// IsMissingIndex reports whether err is a server refusal caused by a
// missing index.
func IsMissingIndex(err error) bool {
	if generic.IsMissingIndex(err) {
		return true
	}
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	if se.HasErrorCode(codeNoQueryExecutionPlans) {
		return true
	}
	return se.HasErrorCode(codeBadValue) && se.HasErrorMessage("hint provided does not correspond to an existing index")
}

// =============================================================================
// DOCUMENT STORE (generic.DocumentStore interface)
// =============================================================================

// Put inserts or replaces a document.
func (s *Store) Put(ctx context.Context, m generic.Mapping, doc generic.Document) error {
	body := bson.M{"_id": doc.ID}
	for k, v := range doc.Fields {
		body[k] = v
	}
	_, err := s.db.Collection(m.Collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		body,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Get returns one owner's document.
func (s *Store) Get(ctx context.Context, m generic.Mapping, owner generic.OwnerID, id string) (generic.Document, error) {
	var raw bson.M
	err := s.db.Collection(m.Collection).FindOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: m.OwnerField, Value: string(owner)},
	}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return generic.Document{}, generic.ErrNotFound
	}
	if err != nil {
		return generic.Document{}, err
	}
	return toDocument(raw), nil
}

// Delete removes one owner's document.
func (s *Store) Delete(ctx context.Context, m generic.Mapping, owner generic.OwnerID, id string) error {
	res, err := s.db.Collection(m.Collection).DeleteOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: m.OwnerField, Value: string(owner)},
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return generic.ErrNotFound
	}
	return nil
}

// Query executes one pushed-down query. Server errors are returned
// unwrapped so callers can inspect their codes.
func (s *Store) Query(ctx context.Context, q generic.StoreQuery) ([]generic.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter, opts := buildFind(q, s.RequireIndexes)
	cur, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, err
	}
	docs := make([]generic.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, toDocument(raw))
	}
	return docs, nil
}

// buildFind translates a store query into a filter and find options.
func buildFind(q generic.StoreQuery, hint bool) (bson.D, *options.FindOptionsBuilder) {
	filter := bson.D{{Key: q.OwnerField, Value: string(q.OwnerID)}}
	for _, eq := range q.Equals {
		filter = append(filter, bson.E{Key: eq.Field, Value: eq.Value})
	}
	if q.Range != nil {
		op := "$gte"
		if q.Range.Op == generic.OpLTE {
			op = "$lte"
		}
		filter = append(filter, bson.E{Key: q.Range.Field, Value: bson.D{
			{Key: op, Value: generic.FromEpochMillis(q.Range.Value)},
		}})
	}

	opts := options.Find()
	if q.Sort != nil {
		dir := 1
		if q.Sort.Direction == generic.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Sort.Field, Value: dir}, {Key: "_id", Value: dir}})
		if hint {
			opts.SetHint(q.IndexSpec().Name())
		}
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return filter, opts
}

func toDocument(raw bson.M) generic.Document {
	id := fmt.Sprint(raw["_id"])
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		if dt, ok := v.(bson.DateTime); ok {
			fields[k] = dt.Time().UTC()
			continue
		}
		fields[k] = v
	}
	return generic.Document{ID: id, Fields: fields}
}
