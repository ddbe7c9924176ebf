package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// document is the stored form of an entry.
type document struct {
	Key    string  `bson:"_id"`
	Value  string  `bson:"value"`
	Expiry instant `bson:"expiry"`
}

// instant stores an expiry as microseconds since the Unix epoch. BSON
// datetimes only hold milliseconds.
type instant time.Time

func (i instant) Time() time.Time { return time.Time(i) }

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

// MarshalBSONValue implements bson.ValueMarshaler.
func (i instant) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(micros(time.Time(i)))
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler. Native datetimes are
// accepted for documents written by other tools.
func (i *instant) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeInt64:
		*i = instant(time.UnixMicro(rv.Int64()).UTC())
	case bson.TypeDateTime:
		*i = instant(rv.Time().UTC())
	default:
		return fmt.Errorf("mongodb: cannot decode %s into an expiry", t)
	}
	return nil
}
