package mysql

import (
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
	mysqldriver "github.com/go-sql-driver/mysql"
)

// Options are the configuration options for the MySQL driver.
type Options struct {
	cache.Config

	// Driver is the go-sql-driver/mysql configuration. Instants are always
	// parsed and sent in UTC, whatever the configured location.
	Driver *mysqldriver.Config `mapstructure:"-"`

	// TableName is the table holding the entries. Defaults to persisted_cache.
	TableName string
}

func (o *Options) revise() {
	if o.Driver == nil {
		o.Driver = mysqldriver.NewConfig()
	} else {
		o.Driver = o.Driver.Clone()
	}
	o.Driver.ParseTime = true
	o.Driver.Loc = time.UTC
	if o.TableName == "" {
		o.TableName = sqldriver.DefaultTableName
	}
}
