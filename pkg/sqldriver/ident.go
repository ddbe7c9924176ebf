package sqldriver

import (
	"fmt"
	"strings"
)

// DefaultTableName is the table created when none is configured.
const DefaultTableName = "persisted_cache"

// QuoteIdentifier delimits name with left and right, doubling embedded
// right delimiters.
func QuoteIdentifier(name, left, right string) string {
	return left + strings.ReplaceAll(name, right, right+right) + right
}

// IndexName derives the name of an index of table.
func IndexName(table, suffix string) string {
	return fmt.Sprintf("idx_%s_%s", table, suffix)
}
