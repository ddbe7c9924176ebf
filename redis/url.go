package redis

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bartventer/persistedcache/internal/urlparser"
	"github.com/mitchellh/mapstructure"
)

// paramKeyBlacklist is a list of keys that should not be set on the Options.
var paramKeyBlacklist = map[string]struct{}{
	"serializer":                 {},
	"addrs":                      {},
	"dialer":                     {},
	"onconnect":                  {},
	"credentialsprovider":        {},
	"credentialsprovidercontext": {},
	"newclient":                  {},
}

// optionsFromURL parses a [url.URL] into [Options].
//
// The URL should have the following format:
//
//	redis://[user[:password]@]host:port[/db]
//	rediscluster://[user[:password]@]host1:port1,host2:port2
//
// All fields of [Options] and the redis client options can be set as query
// parameters, except for the following:
//   - [redis.UniversalOptions.Addrs]
//   - Any option that is a function
//   - Serializer
//
// Example:
//
//	redis://localhost:6379?maxretries=5&minretrybackoff=512ms
//
// This will return Options with Addrs set to ["localhost:6379"],
// MaxRetries set to 5, and MinRetryBackoff set to 512ms.
func optionsFromURL(u *url.URL) (Options, error) {
	var opts Options

	// Parse the query parameters into a map
	parser := urlparser.New(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToIPNetHookFunc(),
		mapstructure.StringToIPHookFunc(),
		urlparser.StringToTLSConfigHookFunc(),
	)
	rest, err := parser.OptionsFromURL(u, &opts, paramKeyBlacklist)
	if err != nil {
		return Options{}, err
	}
	if len(rest) > 0 {
		keys := make([]string, 0, len(rest))
		for k := range rest {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Options{}, fmt.Errorf("unsupported query parameters: %s", strings.Join(keys, ", "))
	}

	if u.Host == "" {
		return Options{}, fmt.Errorf("missing host in %q", u.Redacted())
	}
	if u.Scheme == ClusterScheme {
		opts.Addrs = strings.Split(u.Host, ",")
		opts.ClusterMode = true
	} else {
		opts.Addrs = []string{u.Host}
	}

	if u.User != nil {
		opts.Username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			opts.Password = p
		}
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return Options{}, fmt.Errorf("invalid database number %q: %w", db, err)
		}
		opts.DB = n
	}

	return opts, nil
}
