package sqldriver

import (
	"fmt"
	"time"
)

// TextTimeLayout is a fixed-width UTC layout whose lexical order matches
// chronological order, for backends storing instants as text.
const TextTimeLayout = "2006-01-02T15:04:05.000000Z"

// EncodeTextTime formats t with [TextTimeLayout].
func EncodeTextTime(t time.Time) any {
	return t.UTC().Format(TextTimeLayout)
}

// timeScanner scans expiry columns returned as instants or as text.
type timeScanner struct {
	t time.Time
}

func (s *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.t = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		s.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("sqldriver: cannot scan %T into an instant", src)
	}
}

func (s *timeScanner) parse(v string) error {
	t, err := time.Parse(TextTimeLayout, v)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return err
		}
	}
	s.t = t.UTC()
	return nil
}
