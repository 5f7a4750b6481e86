// Package mongostore implements the document store on MongoDB.
// Document ids are stored as string `_id` values.
package mongostore

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/internquest/backend/core"
)

const connectTimeout = 10 * time.Second

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	emulator bool
	nowFunc  func() time.Time
}

var (
	_ core.DocStore   = (*Store)(nil)
	_ core.DocWatcher = (*Store)(nil)
)

// Connect opens a client on conf.Mongo.URI and checks the primary is reachable.
func Connect(ctx context.Context, conf *core.Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Mongo.URI).SetAppName(conf.AppName))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return &Store{
		client:   client,
		db:       client.Database(conf.Mongo.Database),
		emulator: isLocalURI(conf.Mongo.URI),
		nowFunc:  time.Now,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Emulator reports whether every host of the connection string is a loopback address.
func (s *Store) Emulator() bool { return s.emulator }

func (s *Store) Get(ctx context.Context, coll, id string) (core.Document, error) {
	var raw bson.M
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.Document{}, core.ErrDocNotFound
		}
		return core.Document{}, errors.Wrapf(err, "getting %s/%s", coll, id)
	}
	return toDocument(raw), nil
}

func (s *Store) Create(ctx context.Context, coll, id string, data map[string]interface{}) error {
	doc := core.ResolveTimestamps(data, s.nowFunc().UTC())
	if doc == nil {
		doc = make(map[string]interface{})
	}
	doc["_id"] = id
	if _, err := s.db.Collection(coll).InsertOne(ctx, bson.M(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.ErrDocExists
		}
		return errors.Wrapf(err, "creating %s/%s", coll, id)
	}
	return nil
}

func (s *Store) FindEqual(ctx context.Context, coll, field string, value interface{}, limit int) ([]core.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, coll, bson.M{field: value}, opts)
}

func (s *Store) Page(ctx context.Context, coll, startAfter string, limit int) ([]core.Document, error) {
	filter := bson.M{"_id": bson.M{"$type": "string"}}
	if startAfter != "" {
		filter = bson.M{"_id": bson.M{"$gt": startAfter}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, coll, filter, opts)
}

func (s *Store) find(ctx context.Context, coll string, filter interface{}, opts *options.FindOptions) ([]core.Document, error) {
	cur, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", coll)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []core.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "decoding %s document", coll)
		}
		docs = append(docs, toDocument(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating %s", coll)
	}
	return docs, nil
}

// Commit applies the writes in one multi-document transaction.
func (s *Store) Commit(ctx context.Context, writes []core.DocWrite) error {
	if len(writes) == 0 {
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, w := range writes {
			res, err := s.db.Collection(w.Collection).UpdateOne(sc, bson.M{"_id": w.ID}, updateDoc(w))
			if err != nil {
				return nil, errors.Wrapf(err, "updating %s/%s", w.Collection, w.ID)
			}
			if res.MatchedCount == 0 {
				return nil, core.ErrDocNotFound
			}
		}
		return nil, nil
	})
	return err
}

// WatchCreates follows the insert events of coll on a change stream until ctx is done.
func (s *Store) WatchCreates(ctx context.Context, coll string, fn func(core.Document)) error {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}}}
	stream, err := s.db.Collection(coll).Watch(ctx, pipeline)
	if err != nil {
		return errors.Wrapf(err, "watching %s", coll)
	}
	defer func() { _ = stream.Close(context.Background()) }()

	for stream.Next(ctx) {
		var event struct {
			FullDocument bson.M `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			return errors.Wrapf(err, "decoding %s change event", coll)
		}
		fn(toDocument(event.FullDocument))
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrapf(err, "watching %s", coll)
	}
	return nil
}

// updateDoc turns a write into an update document. Top-level server timestamps use $currentDate.
func updateDoc(w core.DocWrite) bson.M {
	set := bson.M{}
	now := bson.M{}
	for k, v := range w.Set {
		if v == core.ServerTimestamp {
			now[k] = true
			continue
		}
		set[k] = v
	}
	unset := bson.M{}
	for _, field := range w.Unset {
		if _, ok := w.Set[field]; !ok {
			unset[field] = ""
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = core.ResolveTimestamps(set, time.Now().UTC())
	}
	if len(now) > 0 {
		update["$currentDate"] = now
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func toDocument(raw bson.M) core.Document {
	doc := core.Document{Data: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = idString(v)
			continue
		}
		doc.Data[k] = normalize(v)
	}
	return doc
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	}
	return ""
}

// normalize converts driver types into plain maps, slices and times.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	}
	return v
}

func isLocalURI(uri string) bool {
	if !strings.HasPrefix(uri, "mongodb://") {
		return false
	}
	hosts := strings.TrimPrefix(uri, "mongodb://")
	if i := strings.IndexAny(hosts, "/?"); i >= 0 {
		hosts = hosts[:i]
	}
	if i := strings.LastIndex(hosts, "@"); i >= 0 {
		hosts = hosts[i+1:]
	}
	for _, host := range strings.Split(hosts, ",") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.Trim(host, "[]")
		if host == "localhost" {
			continue
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return false
		}
	}
	return true
}
