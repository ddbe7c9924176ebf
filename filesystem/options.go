package filesystem

import cache "github.com/bartventer/persistedcache"

// DefaultConcurrency bounds the file operations run in parallel by bulk
// operations.
const DefaultConcurrency = 8

// Options are the configuration options for the filesystem driver.
type Options struct {
	cache.Config

	// Path is the directory holding the entry files. Required.
	Path string `mapstructure:"-"`

	// Concurrency bounds the files handled in parallel by Flush,
	// FlushPattern and Purge. Defaults to DefaultConcurrency.
	Concurrency int
}

func (o *Options) revise() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}
