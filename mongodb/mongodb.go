/*
Package mongodb implements a MongoDB storage driver for the persisted cache,
backed by the official go.mongodb.org/mongo-driver.

# URL Format

The URL should have the following format:

	mongodb://[user[:password]@]host[:port][/database][?query]

The mongodb+srv scheme is accepted as well. Keys matching the case-insensitive
field names of [Options] configure the driver; every other parameter (for
example replicaSet or authSource) stays in the URI handed to the client.

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/mongodb"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "mongodb://localhost:27017/app?collection=entries")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [mongodb.New] constructor:

	c, err := mongodb.New(ctx, mongodb.Options{URI: "mongodb://localhost:27017", Database: "app"})

# Storage

Each entry is a document whose _id is the key, with the serialized value as
a string and the expiry as microseconds since the Unix epoch. Indexes on
expiry and on (_id, expiry) are created at setup.

# Patterns

Patterns are matched with $regex against the whole key. With
Options.RegexPatterns set, patterns are regular expressions passed through
unchanged; otherwise the universal wildcards are translated.

# Transactions

Single operations touch one document or use one multi-document delete. With
Options.Transactions set, units of work also run in a multi-document
transaction, which requires a replica set or a sharded cluster.
*/
package mongodb

import (
	"context"
	"net/url"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Scheme is the cache scheme for MongoDB.
const Scheme = "mongodb"

func init() { //nolint:gochecknoinits // This is the entry point of the package.
	o := &opener{}
	cache.RegisterCache(Scheme, o)
	cache.RegisterCache("mongodb+srv", o)
}

type opener struct{}

var _ cache.URLOpener = (*opener)(nil)

// OpenCacheURL implements cache.URLOpener.
func (o *opener) OpenCacheURL(ctx context.Context, u *url.URL) (*cache.Cache, error) {
	opts, err := optionsFromURL(u)
	if err != nil {
		return nil, pcerrors.NewWithScheme(Scheme, err)
	}
	return New(ctx, opts)
}

// New returns a cache stored in the MongoDB collection described by options.
func New(ctx context.Context, options Options) (*cache.Cache, error) {
	store, err := NewStore(ctx, options)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(ctx, store, options.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// Store is a MongoDB implementation of [driver.Store].
type Store struct {
	client       *mongo.Client
	coll         *mongo.Collection
	regex        bool
	transactions bool
}

var _ driver.Store = (*Store)(nil)

// NewStore connects a client for options.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	opts.revise()
	clientOpts := opts.Client
	if clientOpts == nil {
		clientOpts = options.Client()
	}
	if opts.URI != "" {
		clientOpts.ApplyURI(opts.URI)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, pcerrors.Mark(Scheme, err, cache.ErrStorage)
	}
	return NewStoreFromClient(client, opts), nil
}

// NewStoreFromClient returns a store using client. The store takes ownership
// of the client and disconnects it on Close.
func NewStoreFromClient(client *mongo.Client, opts Options) *Store {
	opts.revise()
	return &Store{
		client:       client,
		coll:         client.Database(opts.Database).Collection(opts.Collection),
		regex:        opts.RegexPatterns,
		transactions: opts.Transactions,
	}
}

// Collection returns the collection holding the entries.
func (s *Store) Collection() *mongo.Collection { return s.coll }

// Setup implements driver.Store.
func (s *Store) Setup(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiry", Value: 1}}},
		{Keys: bson.D{{Key: "_id", Value: 1}, {Key: "expiry", Value: 1}}},
	})
	return err
}

// RunInTransaction implements driver.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	if !s.transactions {
		return s.RunInConnection(ctx, fn)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	// Ending the session aborts a transaction left open by a panic.
	defer sess.EndSession(context.WithoutCancel(ctx))

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())
	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txnOpts); err != nil {
			return errors.Wrap(err, "start transaction")
		}
		if err := fn(sc, &tx{s: s}); err != nil {
			if abortErr := sess.AbortTransaction(context.WithoutCancel(sc)); abortErr != nil {
				return errors.WithSecondaryError(err, abortErr)
			}
			return err
		}
		return sess.CommitTransaction(sc)
	})
}

// RunInConnection implements driver.Store.
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{s: s})
}

// Capabilities implements driver.Store.
func (s *Store) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          Scheme,
		Wildcards:       driver.RegexWildcards,
		PatternMatching: true,
		RegexPatterns:   s.regex,
	}
}

// Ping implements driver.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements driver.Store.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Count returns the number of stored entries, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}

// tx runs commands against the collection of a Store.
type tx struct {
	s *Store
}

var (
	_ driver.Tx     = (*tx)(nil)
	_ driver.Puller = (*tx)(nil)
)

func keyRegex(pattern string) primitive.Regex {
	return primitive.Regex{Pattern: "^(?:" + pattern + ")$"}
}

func live(now time.Time) bson.D {
	return bson.D{{Key: "$gt", Value: micros(now)}}
}

func (t *tx) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var doc document
	err := t.s.coll.FindOne(ctx, bson.D{
		{Key: "_id", Value: key},
		{Key: "expiry", Value: live(now)},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(doc.Value), true, nil
}

func (t *tx) Has(ctx context.Context, key string, now time.Time) (bool, error) {
	n, err := t.s.coll.CountDocuments(ctx, bson.D{
		{Key: "_id", Value: key},
		{Key: "expiry", Value: live(now)},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *tx) Set(ctx context.Context, entry driver.Entry) error {
	_, err := t.s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: entry.Key}},
		document{Key: entry.Key, Value: string(entry.Value), Expiry: instant(entry.Expiry)},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (t *tx) Forget(ctx context.Context, key string) error {
	_, err := t.s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})
	return err
}

func (t *tx) Flush(ctx context.Context) error {
	_, err := t.s.coll.DeleteMany(ctx, bson.D{})
	return err
}

func (t *tx) FlushPattern(ctx context.Context, pattern string) error {
	_, err := t.s.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: keyRegex(pattern)}})
	return err
}

func (t *tx) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.s.coll.DeleteMany(ctx, bson.D{
		{Key: "expiry", Value: bson.D{{Key: "$lte", Value: micros(now)}}},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (t *tx) Query(ctx context.Context, pattern string, now time.Time) ([][]byte, error) {
	cur, err := t.s.coll.Find(ctx, bson.D{
		{Key: "_id", Value: keyRegex(pattern)},
		{Key: "expiry", Value: live(now)},
	}, options.Find().SetProjection(bson.D{{Key: "value", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(context.WithoutCancel(ctx))

	var values [][]byte
	for cur.Next(ctx) {
		v, ok := cur.Current.Lookup("value").StringValueOK()
		if !ok {
			continue
		}
		values = append(values, []byte(v))
	}
	return values, cur.Err()
}

func (t *tx) Pull(ctx context.Context, key string) (driver.Entry, bool, error) {
	var doc document
	err := t.s.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return driver.Entry{}, false, nil
	}
	if err != nil {
		return driver.Entry{}, false, err
	}
	return driver.Entry{Key: doc.Key, Value: []byte(doc.Value), Expiry: doc.Expiry.Time()}, true, nil
}
