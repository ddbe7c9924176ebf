package memcache

import (
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bradfitz/gomemcache/memcache"
)

// Options is the configuration for the Memcached cache.
type Options struct {
	cache.Config

	// Addrs is the list of Memcached server addresses. Required.
	Addrs []string `mapstructure:"-"`

	// Timeout is the socket read/write timeout.
	// The default value is [memcache.DefaultTimeout].
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections kept per address.
	// The default value is [memcache.DefaultMaxIdleConns].
	MaxIdleConns int
}

// revise revises the configuration options to ensure they contain sensible values.
func (o *Options) revise() {
	if o.Timeout <= 0 {
		o.Timeout = memcache.DefaultTimeout
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = memcache.DefaultMaxIdleConns
	}
}
