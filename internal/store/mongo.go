package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"oshirase/internal/logging"
	"oshirase/internal/services"
)

// AppName identifies the pipeline in MongoDB server logs.
const AppName = "oshirase-aggregator"

// MongoStore maps collections onto MongoDB collections of one database. The
// driver client is pooled and safe for concurrent use.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// OpenMongo connects to uri and verifies the connection with a ping.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration, opts Options, logger *slog.Logger) (*MongoStore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(AppName).
		SetConnectTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "connect", "mongodb client", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, services.Wrap(services.ErrPersistence, "store", "connect", "ping mongodb", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "store"),
		now:    time.Now,
	}, nil
}

// EnsureIndexes creates a unique ascending index for each entry in Indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, idx := range Indexes {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: idx.Key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := s.db.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return services.Wrap(services.ErrPersistence, "store", "ensure indexes",
				fmt.Sprintf("index %s.%s", idx.Collection, idx.Key), err)
		}
	}
	s.logger.Debug("indexes ensured", logging.Int("count", len(Indexes)))
	return nil
}

// UpsertDocuments replaces or inserts every document matched on idKey.
func (s *MongoStore) UpsertDocuments(ctx context.Context, collection, idKey string, docs []Document) error {
	if err := validateWrite(collection, idKey); err != nil {
		return err
	}
	coll := s.db.Collection(collection)
	modified := s.now().UTC()
	err := fanOut(ctx, docs, 0, func(ctx context.Context, doc Document) error {
		replacement, id, err := encodeBSON(doc, idKey, modified)
		if err != nil {
			if errors.Is(err, ErrMissingID) {
				return services.Wrap(services.ErrValidation, "store", "upsert", collection, err)
			}
			return services.Wrap(services.ErrPersistence, "store", "upsert", collection, err)
		}
		if s.opts.SkipUnchanged {
			n, err := coll.CountDocuments(ctx, bson.M{FieldHash: replacement[FieldHash]}, options.Count().SetLimit(1))
			if err != nil {
				return services.Wrap(services.ErrPersistence, "store", "upsert", "check existing hash", err)
			}
			if n > 0 {
				return nil
			}
		}
		res := coll.FindOneAndReplace(ctx, bson.M{idKey: id}, replacement, options.FindOneAndReplace().SetUpsert(true))
		if err := res.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return services.Wrap(services.ErrPersistence, "store", "upsert",
				fmt.Sprintf("%s %s=%v", collection, idKey, id), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("documents upserted",
		logging.String(logging.FieldCollection, collection),
		logging.Int("count", len(docs)),
	)
	return nil
}

// FindAll decodes every document of collection into out.
func (s *MongoStore) FindAll(ctx context.Context, collection string, out any) error {
	sort := options.Find().SetSort(bson.D{{Key: IDKey(collection), Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{}, sort)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "find", collection, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "find", "decode documents", err)
	}
	return nil
}

// FindOne decodes the document whose idKey equals id into out.
func (s *MongoStore) FindOne(ctx context.Context, collection, idKey string, id any, out any) (bool, error) {
	if idKey == "" {
		return false, services.Wrap(services.ErrValidation, "store", "find", "identity key is required", nil)
	}
	err := s.db.Collection(collection).FindOne(ctx, bson.M{idKey: id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "store", "find", collection, err)
	}
	return true, nil
}

// Count returns the number of documents in collection.
func (s *MongoStore) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "store", "count", collection, err)
	}
	return n, nil
}

// Close disconnects the client pool.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// encodeBSON flattens doc into a replacement document carrying the hash and
// modification time, and returns the identity value.
func encodeBSON(doc Document, idKey string, modified time.Time) (bson.M, any, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal document: %w", err)
	}
	fields := bson.M{}
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, nil, fmt.Errorf("decode document fields: %w", err)
	}
	id, ok := fields[idKey]
	if !ok || id == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingID, idKey)
	}
	fields[FieldHash] = doc.ContentHash()
	fields[FieldModified] = modified
	return fields, id, nil
}
