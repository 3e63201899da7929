package remote

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements Store over a document database. Tables map to
// collections; records keep their application-level "id" field as the key,
// the driver's _id stays internal.
type MongoStore struct {
	db  *mongo.Database
	log *zap.Logger
}

func NewMongoStore(db *mongo.Database, log *zap.Logger) *MongoStore {
	return &MongoStore{db: db, log: log}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return newError("ping", "", KindUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	filter := bson.M{}
	for k, v := range q.Eq {
		filter[k] = v
	}
	if q.Since != nil && len(q.SinceFields) > 0 {
		or := make([]bson.M, 0, len(q.SinceFields))
		for _, f := range q.SinceFields {
			or = append(or, bson.M{f: bson.M{"$gte": *q.Since}})
		}
		filter["$or"] = or
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := s.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return nil, s.classify("select", table, err)
	}
	defer cur.Close(ctx)

	records := []Record{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, s.classify("select", table, err)
		}
		records = append(records, fromDocument(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, s.classify("select", table, err)
	}
	return records, nil
}

func (s *MongoStore) Get(ctx context.Context, table, id string) (Record, error) {
	var doc bson.M
	err := s.db.Collection(table).FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("get", table, err)
	}
	return fromDocument(doc), nil
}

func (s *MongoStore) Insert(ctx context.Context, table string, rec Record) error {
	if _, err := s.db.Collection(table).InsertOne(ctx, bson.M(rec)); err != nil {
		return s.classify("insert", table, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, table, id string, rec Record) error {
	set := bson.M{}
	for k, v := range rec {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return nil
	}
	_, err := s.db.Collection(table).UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return s.classify("update", table, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, table, id string) (bool, error) {
	res, err := s.db.Collection(table).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, s.classify("delete", table, err)
	}
	return res.DeletedCount > 0, nil
}

// Columns samples the most recent document of the collection and reports its
// field names. An empty collection yields nil, which callers treat as
// "schema unknown, skip filtering" - a document store accepts any field.
func (s *MongoStore) Columns(ctx context.Context, table string) ([]string, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var doc bson.M
	err := s.db.Collection(table).FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("columns", table, err)
	}

	cols := make([]string, 0, len(doc))
	for k := range doc {
		if k == "_id" {
			continue
		}
		cols = append(cols, k)
	}
	return cols, nil
}

func (s *MongoStore) classify(op, table string, err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return newError(op, table, KindConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return newError(op, table, KindTransient, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(op, table, KindTransient, err)
	}
	return newError(op, table, KindQuery, err)
}

// fromDocument converts driver primitives into plain Go values so records
// look the same regardless of which backend produced them.
func fromDocument(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		rec[k] = fromBSONValue(v)
	}
	return rec
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case bson.M:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = fromBSONValue(inner)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSONValue(e.Value)
		}
		return m
	case bson.A:
		a := make([]any, len(t))
		for i, inner := range t {
			a[i] = fromBSONValue(inner)
		}
		return a
	default:
		return v
	}
}
