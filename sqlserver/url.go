package sqlserver

import (
	"net/url"
	"strings"

	"github.com/bartventer/persistedcache/internal/urlparser"
)

// paramKeyBlacklist is a list of keys that should not be set on the Options.
var paramKeyBlacklist = map[string]struct{}{
	"serializer": {},
	"connstring": {},
}

// optionsFromURL parses a [url.URL] into [Options].
//
// The URL should have the following format:
//
//	sqlserver://[user[:password]@]host[:port][/instance][?query]
//
// All fields of [Options] can be set as query parameters, except for the following:
//   - Serializer
//   - ConnString
//
// The connection string is the URL with the driver parameters removed.
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

	conn := *u
	conn.RawQuery = rest.Encode()
	opts.ConnString = conn.String()

	return opts, nil
}
