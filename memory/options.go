package memory

import cache "github.com/bartventer/persistedcache"

// Options are the configuration options for the in-memory driver.
type Options struct {
	cache.Config
}
