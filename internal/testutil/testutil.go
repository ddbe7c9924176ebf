// Package testutil provides utilities for testing.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// UniqueKey returns a unique key for the test.
// Path separators produced by subtests are replaced so the key is valid for
// every backend, including the filesystem one.
func UniqueKey(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "-", " ", "_").Replace(t.Name())
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}
