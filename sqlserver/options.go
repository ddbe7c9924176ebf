package sqlserver

import (
	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
)

// Options are the configuration options for the SQL Server driver.
type Options struct {
	cache.Config

	// ConnString is the go-mssqldb connection string.
	ConnString string `mapstructure:"-"`

	// Schema holds the table. Defaults to dbo.
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
