package sqlite

import (
	"net/url"
	"strings"

	"github.com/bartventer/persistedcache/internal/urlparser"
)

// paramKeyBlacklist is a list of keys that should not be set on the Options.
var paramKeyBlacklist = map[string]struct{}{
	"serializer": {},
	"path":       {},
	"params":     {},
}

// optionsFromURL parses a [url.URL] into [Options].
//
// The URL should have the following format:
//
//	sqlite://[path][?query]
//
// All fields of [Options] can be set as query parameters, except for the following:
//   - Serializer
//   - Path
//   - Params
//
// Parameters that do not match a field are kept in Params.
func optionsFromURL(u *url.URL) (Options, error) {
	var opts Options

	// Parse the query parameters into a map
	parser := urlparser.New()
	rest, err := parser.OptionsFromURL(u, &opts, paramKeyBlacklist)
	if err != nil {
		return Options{}, err
	}
	for k := range rest {
		if _, ok := paramKeyBlacklist[strings.ToLower(k)]; ok {
			rest.Del(k)
		}
	}
	if len(rest) > 0 {
		opts.Params = rest
	}
	opts.Path = u.Host + u.Path

	return opts, nil
}
