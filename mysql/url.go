package mysql

import (
	"net/url"
	"strings"

	"github.com/bartventer/persistedcache/internal/urlparser"
	mysqldriver "github.com/go-sql-driver/mysql"
)

// paramKeyBlacklist is a list of keys that should not be set on the Options.
var paramKeyBlacklist = map[string]struct{}{
	"serializer": {},
	"driver":     {},
}

// optionsFromURL parses a [url.URL] into [Options].
//
// The URL should have the following format:
//
//	mysql://[user[:password]@]host[:port]/database[?query]
//
// All fields of [Options] can be set as query parameters, except for the following:
//   - Serializer
//   - Driver
//
// The remaining parameters are parsed by go-sql-driver/mysql as part of its DSN.
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

	base := mysqldriver.NewConfig()
	base.Net = "tcp"
	base.Addr = u.Host
	base.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		base.User = u.User.Username()
		base.Passwd, _ = u.User.Password()
	}
	dsn := base.FormatDSN()
	if len(rest) > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + rest.Encode()
	}
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return Options{}, err
	}
	opts.Driver = cfg

	return opts, nil
}
