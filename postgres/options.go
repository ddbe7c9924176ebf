package postgres

import (
	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
)

// Options are the configuration options for the PostgreSQL driver.
type Options struct {
	cache.Config

	// ConnString is the pgx connection string.
	ConnString string `mapstructure:"-"`

	// Schema holds the table. Defaults to public.
	Schema string

	// TableName is the table holding the entries. Defaults to persisted_cache.
	TableName string
}

func (o *Options) revise() {
	if o.Schema == "" {
		o.Schema = DefaultSchema
	}
	if o.TableName == "" {
		o.TableName = sqldriver.DefaultTableName
	}
}
