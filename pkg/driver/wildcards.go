package driver

import "strings"

// Universal wildcard tokens accepted by the cache engine.
const (
	AnyToken = '*' // matches any run of characters, including none
	OneToken = '?' // matches exactly one character
)

// Wildcards maps the universal wildcard tokens to a backend's native ones.
type Wildcards struct {
	// Any replaces the universal '*' token.
	Any string
	// One replaces the universal '?' token.
	One string
	// Escape is prefixed to literal characters listed in Special.
	// No escaping is performed when Escape is empty.
	Escape string
	// Special lists the characters that carry a meaning in the native syntax
	// and must be escaped when they appear literally in a pattern.
	Special string
}

// Translate rewrites a universal pattern into the native syntax.
func (w Wildcards) Translate(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	for _, r := range pattern {
		switch {
		case r == AnyToken:
			b.WriteString(w.Any)
		case r == OneToken:
			b.WriteString(w.One)
		case w.Escape != "" && strings.ContainsRune(w.Special, r):
			b.WriteString(w.Escape)
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	// SQLLikeWildcards is the mapping for SQL LIKE with ESCAPE '\'.
	SQLLikeWildcards = Wildcards{Any: "%", One: "_", Escape: `\`, Special: `%_\`}

	// GlobWildcards is the mapping for shell-style glob matchers such as
	// [path.Match] and the Redis MATCH option.
	GlobWildcards = Wildcards{Any: "*", One: "?", Escape: `\`, Special: `[]\`}

	// RegexWildcards is the mapping for regular expressions. The translated
	// pattern is not anchored.
	RegexWildcards = Wildcards{Any: ".*", One: ".", Escape: `\`, Special: `\.+*?()|[]{}^$`}
)
