package sqldriver

import (
	"database/sql"
	"time"

	"github.com/bartventer/persistedcache/pkg/driver"
)

// Argument names. Positional dialects receive the arguments of a script in
// the order listed in the [Dialect] field documentation; named dialects
// receive them as [sql.Named] values.
const (
	ArgKey     = "Key"
	ArgValue   = "Value"
	ArgExpiry  = "Expiry"
	ArgNow     = "Now"
	ArgPattern = "Pattern"
)

// Dialect holds the scripts and conventions of one SQL backend. The table
// it targets has a unique key column, a JSON-capable value column and an
// expiry column with at least microsecond precision.
type Dialect struct {
	// Scheme names the backend in error messages.
	Scheme string

	// Setup lists idempotent statements creating the table and its indexes.
	Setup []string
	// Get selects the value of a live entry. Arguments: Key, Now.
	Get string
	// Has selects a row for a live entry. Arguments: Key, Now.
	Has string
	// Set upserts an entry. Arguments: Key, Value, Expiry.
	Set string
	// Forget deletes an entry. Arguments: Key.
	Forget string
	// Flush deletes all entries. No arguments.
	Flush string
	// FlushPattern deletes entries whose key matches. Arguments: Pattern.
	FlushPattern string
	// Purge deletes entries with expiry at or before now. Arguments: Now.
	Purge string
	// Query selects the values of matching live entries. Arguments: Pattern, Now.
	Query string
	// Pull deletes an entry and returns its value and expiry in one
	// statement. Optional. Arguments: Key.
	Pull string
	// Count selects the number of stored entries. No arguments.
	Count string

	// Wildcards maps the universal wildcards to the LIKE syntax of the backend.
	Wildcards driver.Wildcards
	// MaxKeyLength is the size of the key column.
	MaxKeyLength int
	// Isolation is the level transactions are started at.
	Isolation sql.IsolationLevel
	// NamedArgs passes arguments as [sql.Named] values.
	NamedArgs bool
	// EncodeTime converts an instant to the driver argument compared with the
	// expiry column. Instants are passed in UTC as is when nil.
	EncodeTime func(time.Time) any
}

func (d *Dialect) time(t time.Time) any {
	t = t.UTC()
	if d.EncodeTime != nil {
		return d.EncodeTime(t)
	}
	return t
}

// args binds name/value pairs for a script.
func (d *Dialect) args(pairs ...any) []any {
	out := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if d.NamedArgs {
			out = append(out, sql.Named(pairs[i].(string), pairs[i+1]))
			continue
		}
		out = append(out, pairs[i+1])
	}
	return out
}

// capabilities derives the driver capabilities of the dialect.
func (d *Dialect) capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          d.Scheme,
		Wildcards:       d.Wildcards,
		MaxKeyLength:    d.MaxKeyLength,
		PatternMatching: d.FlushPattern != "" && d.Query != "",
	}
}
