package sqlite

import (
	"net/url"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
)

// defaultPragmas are applied to every connection unless overridden.
// case_sensitive_like makes LIKE patterns match keys case-sensitively.
var defaultPragmas = []string{
	"busy_timeout(5000)",
	"case_sensitive_like(1)",
}

// Options are the configuration options for the SQLite driver.
type Options struct {
	cache.Config

	// Path is the database file. Empty opens an in-memory database.
	Path string `mapstructure:"-"`

	// TableName is the table holding the entries. Defaults to persisted_cache.
	TableName string

	// Params are forwarded to modernc.org/sqlite as DSN query parameters.
	Params url.Values `mapstructure:"-"`
}

func (o *Options) revise() {
	if o.TableName == "" {
		o.TableName = sqldriver.DefaultTableName
	}
}

// dsn builds the connection string of the options.
func (o *Options) dsn() string {
	path := o.Path
	if path == "" {
		path = ":memory:"
	}
	params := url.Values{}
	for k, v := range o.Params {
		params[k] = v
	}
	if _, ok := params["_pragma"]; !ok {
		params["_pragma"] = defaultPragmas
	}
	return path + "?" + params.Encode()
}
