package redis

import (
	"strings"

	cache "github.com/bartventer/persistedcache"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultNamespace is the default value for the [Options.Namespace] option.
	DefaultNamespace = "persistedcache:"

	// DefaultCountLimit is the default value for the [Options.CountLimit] option.
	DefaultCountLimit = 10
)

// Options is the configuration for the Redis cache.
type Options struct {
	cache.Config

	// Namespace prefixes every key, so several caches can share a database.
	// The default value is [DefaultNamespace].
	Namespace string

	// CountLimit is the hint to the SCAN command about the amount of work to be done at each call.
	// The default value is 10.
	//
	// Refer to [redis scan] for more information.
	//
	// [redis scan]: https://redis.io/docs/latest/commands/scan/
	CountLimit int64

	// HashTag, when set, is wrapped in braces and prepended to the namespace
	// so that every key of the cache maps to the same Redis Cluster slot.
	HashTag string

	// ClusterMode creates a cluster client even for a single address.
	ClusterMode bool

	redis.UniversalOptions
}

// revise revises the configuration options to ensure they contain sensible values.
func (o *Options) revise() {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if tag := strings.Trim(o.HashTag, "{}"); tag != "" && !strings.HasPrefix(o.Namespace, "{"+tag+"}") {
		o.Namespace = "{" + tag + "}" + o.Namespace
	}
	if o.CountLimit <= 0 {
		o.CountLimit = DefaultCountLimit
	}
}
