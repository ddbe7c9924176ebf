package mongodb

import (
	cache "github.com/bartventer/persistedcache"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Defaults for the database and collection holding the entries.
const (
	DefaultDatabase   = "persistedCache"
	DefaultCollection = "persistedCache"
)

// Options are the configuration options for the MongoDB driver.
type Options struct {
	cache.Config

	// URI is the connection string applied to Client.
	URI string `mapstructure:"-"`

	// Client holds additional client options. Optional.
	Client *options.ClientOptions `mapstructure:"-"`

	// Database holds the collection. Defaults to the database named in the
	// URI path, then to persistedCache.
	Database string

	// Collection holds the entries. Defaults to persistedCache.
	Collection string

	// RegexPatterns makes FlushPattern and Query take regular expressions
	// instead of wildcard patterns.
	RegexPatterns bool

	// Transactions runs units of work in multi-document transactions.
	Transactions bool
}

func (o *Options) revise() {
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
}
