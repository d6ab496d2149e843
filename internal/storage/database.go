package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// MongoStore keeps listings in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB and pings it.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With("component", "mongo_store", "collection", cfg.Collection),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

// Exists returns the hex ids of documents whose field is in values.
func (s *MongoStore) Exists(ctx context.Context, field string, values []string) ([]string, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	cur, err := s.collection.Find(ctx,
		bson.D{{Key: field, Value: bson.D{{Key: "$in", Value: values}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb find %s: %w", field, err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb decode id: %w", err)
		}
		ids = append(ids, doc.ID.Hex())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb cursor: %w", err)
	}
	return ids, nil
}

// BulkDelete removes documents by hex id.
func (s *MongoStore) BulkDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	oids, err := objectIDs(ids)
	if err != nil {
		return 0, err
	}
	res, err := s.collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb delete: %w", err)
	}
	s.logger.Debug("documents deleted", "requested", len(ids), "deleted", res.DeletedCount)
	return int(res.DeletedCount), nil
}

// BulkInsert inserts docs unordered, so one bad document does not stop the rest.
func (s *MongoStore) BulkInsert(ctx context.Context, docs []*types.Listing) (*InsertResult, error) {
	if len(docs) == 0 {
		return &InsertResult{}, nil
	}

	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = d
	}

	res, err := s.collection.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		s.logger.Debug("documents inserted", "count", len(res.InsertedIDs))
		return &InsertResult{Inserted: len(res.InsertedIDs)}, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return nil, fmt.Errorf("mongodb insert: %w", err)
	}

	result := insertResultFromWriteErrors(len(docs), bwe.WriteErrors)
	s.logger.Warn("bulk insert partially failed",
		"inserted", result.Inserted,
		"failed", len(result.Failed),
		"first_error", bwe.WriteErrors[0].Message,
	)
	return result, nil
}

// Search runs a query: count over the filter, then a sorted page.
func (s *MongoStore) Search(ctx context.Context, q *Query) (*Hits, error) {
	filter := buildFilter(q)

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb count: %w", err)
	}

	if len(q.SearchAfter) > 0 {
		filter = bson.D{{Key: "$and", Value: bson.A{filter, buildCursorFilter(q.Order, q.SearchAfter)}}}
	}

	cur, err := s.collection.Find(ctx, filter, buildFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	defer cur.Close(ctx)

	hits := &Hits{Total: total}
	for cur.Next(ctx) {
		var l types.Listing
		if err := cur.Decode(&l); err != nil {
			return nil, fmt.Errorf("mongodb decode listing: %w", err)
		}
		hits.Hits = append(hits.Hits, Hit{Listing: l, Sort: SortTuple(&l)})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb cursor: %w", err)
	}
	return hits, nil
}

// EnsureIndex creates the lookup and sort indexes.
func (s *MongoStore) EnsureIndex(ctx context.Context) error {
	names, err := s.collection.Indexes().CreateMany(ctx, indexModels())
	if err != nil {
		return fmt.Errorf("mongodb create indexes: %w", err)
	}
	s.logger.Info("indexes ensured", "indexes", names)
	return nil
}

// DropIndex drops the whole collection.
func (s *MongoStore) DropIndex(ctx context.Context) error {
	if err := s.collection.Drop(ctx); err != nil {
		return fmt.Errorf("mongodb drop: %w", err)
	}
	s.logger.Info("collection dropped")
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Query builders ---

func buildFilter(q *Query) bson.D {
	filter := bson.D{}
	switch terms := QueryTerms(q.Category); len(terms) {
	case 0:
	case 1:
		filter = append(filter, categoryTerm(terms[0]))
	default:
		all := bson.A{}
		for _, t := range terms {
			all = append(all, bson.D{categoryTerm(t)})
		}
		filter = append(filter, bson.E{Key: "$and", Value: all})
	}
	rng := bson.D{}
	if q.MinPrice != nil {
		rng = append(rng, bson.E{Key: "$gte", Value: *q.MinPrice})
	}
	if q.MaxPrice != nil {
		rng = append(rng, bson.E{Key: "$lte", Value: *q.MaxPrice})
	}
	if len(rng) > 0 {
		filter = append(filter, bson.E{Key: "price", Value: rng})
	}
	return filter
}

// categoryTerm matches category values containing term as a whole word,
// ignoring case.
func categoryTerm(term string) bson.E {
	return bson.E{Key: "category", Value: primitive.Regex{
		Pattern: `(^|\s)` + regexp.QuoteMeta(term) + `(\s|$)`,
		Options: "i",
	}}
}

// buildCursorFilter matches documents strictly after the cursor in sort order.
func buildCursorFilter(order types.SortOrder, after []int64) bson.D {
	op := "$gt"
	if order == types.OrderDesc {
		op = "$lt"
	}
	price := after[0]
	if len(after) == 1 {
		return bson.D{{Key: "price", Value: bson.D{{Key: op, Value: price}}}}
	}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "price", Value: bson.D{{Key: op, Value: price}}}},
		bson.D{
			{Key: "price", Value: price},
			{Key: "seq", Value: bson.D{{Key: op, Value: after[1]}}},
		},
	}}}
}

func buildSort(order types.SortOrder) bson.D {
	dir := 1
	if order == types.OrderDesc {
		dir = -1
	}
	return bson.D{{Key: "price", Value: dir}, {Key: "seq", Value: dir}}
}

func buildFindOptions(q *Query) *options.FindOptions {
	opts := options.Find().SetSort(buildSort(q.Order)).SetLimit(int64(q.Size))
	if len(q.SearchAfter) == 0 && q.From > 0 {
		opts.SetSkip(int64(q.From))
	}
	return opts
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "link", Value: 1}}, Options: options.Index().SetName("link_1")},
		{Keys: bson.D{{Key: "imageSrc", Value: 1}}, Options: options.Index().SetName("imageSrc_1")},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "price", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().SetName("category_price_seq"),
		},
	}
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", id, err)
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

func insertResultFromWriteErrors(total int, errs []mongo.BulkWriteError) *InsertResult {
	failed := make([]int, 0, len(errs))
	seen := make(map[int]bool, len(errs))
	for _, we := range errs {
		if we.Index < 0 || we.Index >= total || seen[we.Index] {
			continue
		}
		seen[we.Index] = true
		failed = append(failed, we.Index)
	}
	return &InsertResult{Inserted: total - len(failed), Failed: failed}
}
