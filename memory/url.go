package memory

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/bartventer/persistedcache/internal/urlparser"
)

// paramKeyBlacklist is a list of keys that should not be set on the Options.
var paramKeyBlacklist = map[string]struct{}{
	"serializer": {},
}

// optionsFromURL parses a [url.URL] into [Options].
//
// The URL should have the following format:
//
//	mem://?purgeinterval=5m
//
// All fields of [Options] can be set as query parameters, except for the following:
//   - Serializer
//
// Since the in-memory store has no connection string, unknown parameters are rejected.
func optionsFromURL(u *url.URL) (Options, error) {
	var opts Options

	// Parse the query parameters into a map
	parser := urlparser.New()
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

	return opts, nil
}
