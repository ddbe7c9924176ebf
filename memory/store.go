package memory

import (
	"slices"

	"github.com/bartventer/persistedcache/pkg/driver"
)

// items is the in-memory table. It is not safe for concurrent use; the
// Store serializes access.
type items map[string]driver.Entry

// sortedByExpiry returns all entries sorted by expiry time (closest to expiry first).
func (m items) sortedByExpiry() []driver.Entry {
	entries := make([]driver.Entry, 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b driver.Entry) int {
		return a.Expiry.Compare(b.Expiry)
	})
	return entries
}

// undoLog records the state of every key before its first change in a
// transaction, so the changes can be reverted.
type undoLog struct {
	saved map[string]*driver.Entry // nil means the key was absent
}

func (u *undoLog) record(m items, key string) {
	if u.saved == nil {
		u.saved = make(map[string]*driver.Entry)
	}
	if _, done := u.saved[key]; done {
		return
	}
	if e, ok := m[key]; ok {
		u.saved[key] = &e
		return
	}
	u.saved[key] = nil
}

func (u *undoLog) revert(m items) {
	for key, e := range u.saved {
		if e == nil {
			delete(m, key)
			continue
		}
		m[key] = *e
	}
	u.saved = nil
}
