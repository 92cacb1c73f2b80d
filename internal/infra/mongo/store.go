package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"quiz-progress-service/internal/docstore"
)

// Meta fields stored next to the document fields.
const (
	fieldPath = "_path"
	fieldKey  = "_key"
)

// Store maps each collection kind (the last path segment) to one MongoDB
// collection. Documents are keyed by "{path}/{id}" and carry their path so
// per-subject listings stay on an index.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the (_path, _key) index for each collection kind.
func (s *Store) EnsureIndexes(ctx context.Context, kinds ...string) error {
	for _, kind := range kinds {
		_, err := s.db.Collection(kind).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: fieldPath, Value: 1}, {Key: fieldKey, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("mongo index %s: %w", kind, err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Document, bool, error) {
	var raw bson.M
	err := s.col(path).FindOne(ctx, bson.M{"_id": docID(path, id)}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("mongo get %s/%s: %w", path, id, err)
	}
	return docstore.Document{ID: id, Fields: toFields(raw)}, true, nil
}

func (s *Store) UpsertMerge(ctx context.Context, path, id string, patch docstore.Patch) error {
	set := bson.M{fieldPath: path, fieldKey: id}
	for k, v := range patch.Set {
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(patch.Inc) > 0 {
		inc := bson.M{}
		for k, delta := range patch.Inc {
			inc[k] = delta
		}
		update["$inc"] = inc
	}

	filter := bson.M{"_id": docID(path, id)}
	opts := options.Update().SetUpsert(true)
	_, err := s.col(path).UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Two concurrent upserts raced to insert; the loser retries as an update.
		_, err = s.col(path).UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return fmt.Errorf("mongo upsert %s/%s: %w", path, id, err)
	}
	return nil
}

func (s *Store) AppendNew(ctx context.Context, path string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	doc := bson.M{"_id": docID(path, id), fieldPath: path, fieldKey: id}
	for k, v := range fields {
		doc[k] = v
	}
	if _, err := s.col(path).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("mongo append %s: %w", path, err)
	}
	return id, nil
}

func (s *Store) DeleteBatch(ctx context.Context, path string, ids []string) error {
	if len(ids) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make(bson.A, len(ids))
	for i, id := range ids {
		keys[i] = docID(path, id)
	}
	if _, err := s.col(path).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("mongo delete batch %s: %w", path, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	filter, err := toFilter(path, q.Filters)
	if err != nil {
		return nil, err
	}

	sort := bson.D{}
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: q.OrderBy, Value: dir})
	}
	sort = append(sort, bson.E{Key: fieldKey, Value: 1})

	opts := options.Find().SetSort(sort)
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.col(path).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo query %s: %w", path, err)
	}
	defer cursor.Close(ctx)

	var docs []docstore.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("mongo decode %s: %w", path, err)
		}
		key, _ := raw[fieldKey].(string)
		docs = append(docs, docstore.Document{ID: key, Fields: toFields(raw)})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo query %s: %w", path, err)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, path string, filters []docstore.Filter) (int, error) {
	filter, err := toFilter(path, filters)
	if err != nil {
		return 0, err
	}
	n, err := s.col(path).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo count %s: %w", path, err)
	}
	return int(n), nil
}

func (s *Store) col(path string) *mongo.Collection {
	return s.db.Collection(kindOf(path))
}

func kindOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func docID(path, id string) string {
	return path + "/" + id
}

var mongoOps = map[docstore.Op]string{
	docstore.Eq:  "$eq",
	docstore.Gt:  "$gt",
	docstore.Gte: "$gte",
	docstore.Lt:  "$lt",
	docstore.Lte: "$lte",
}

// toFilter scopes the query to path. MongoDB comparison operators only match
// values of the same type bracket, which keeps mismatched kinds out. Filters
// on the same field share one operator document.
func toFilter(path string, filters []docstore.Filter) (bson.D, error) {
	out := bson.D{{Key: fieldPath, Value: path}}
	index := make(map[string]int, len(filters))
	for _, f := range filters {
		op, ok := mongoOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("mongo: unsupported operator %q", f.Op)
		}
		if i, seen := index[f.Field]; seen {
			out[i].Value.(bson.M)[op] = docstore.Normalize(f.Value)
			continue
		}
		index[f.Field] = len(out)
		out = append(out, bson.E{Key: f.Field, Value: bson.M{op: docstore.Normalize(f.Value)}})
	}
	return out, nil
}

func toFields(raw bson.M) docstore.Fields {
	fields := make(docstore.Fields, len(raw))
	for k, v := range raw {
		if k == "_id" || k == fieldPath || k == fieldKey {
			continue
		}
		fields[k] = normalize(v)
	}
	return fields
}

// normalize rewrites BSON-decoded values into the docstore value set.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int32:
		return int64(val)
	case primitive.DateTime:
		return docstore.FormatTime(val.Time())
	case time.Time:
		return docstore.FormatTime(val)
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	default:
		return docstore.Normalize(v)
	}
}
