package cache

import "time"

// DefaultPurgeInterval is the interval of the background purge when
// [Config.PurgeInterval] is not set.
const DefaultPurgeInterval = 24 * time.Hour

// Config holds the backend independent options of a cache instance.
//
// Every driver embeds Config in its own options, so all fields can also be set
// as case-insensitive URL query parameters:
//
//	sqlite:///var/lib/app/cache.db?purgeinterval=1h&keymaxlength=128
type Config struct {
	// SkipStorageSetup disables creation of the table, collection or directory
	// when the cache is constructed.
	SkipStorageSetup bool

	// DisablePurge disables the background purge of expired entries.
	DisablePurge bool

	// PurgeInterval is the interval between two background purges.
	// If PurgeInterval is less than or equal to 0, [DefaultPurgeInterval] is used.
	PurgeInterval time.Duration

	// KeyMaxLength is the maximum number of characters of a key. Backends with
	// a lower limit lower it further.
	// If KeyMaxLength is less than or equal to 0, [DefaultKeyMaxLength] is used.
	KeyMaxLength int

	// DisallowPrimitives rejects booleans, numbers and strings as values.
	DisallowPrimitives bool

	// Serializer encodes values. Defaults to a zero [JSONSerializer].
	Serializer Serializer `mapstructure:"-"`
}

// revise revises the configuration options to ensure they contain sensible values.
func (c *Config) revise() {
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = DefaultPurgeInterval
	}
	if c.KeyMaxLength <= 0 {
		c.KeyMaxLength = DefaultKeyMaxLength
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
}
