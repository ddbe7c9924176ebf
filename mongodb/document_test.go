package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestInstant_RoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 4, 5, 6, 7, 123456000, time.UTC)
	raw, err := bson.Marshal(document{Key: "key", Value: `"v"`, Expiry: instant(at)})
	require.NoError(t, err)

	// Microseconds survive, which a BSON datetime would truncate.
	assert.Equal(t, at.UnixMicro(), bson.Raw(raw).Lookup("expiry").Int64())

	var got document
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.True(t, at.Equal(got.Expiry.Time()))
	assert.Equal(t, "key", got.Key)
	assert.Equal(t, `"v"`, got.Value)
}

func TestInstant_UnmarshalDateTime(t *testing.T) {
	at := time.Date(2024, 3, 4, 5, 6, 7, 123000000, time.UTC)
	raw, err := bson.Marshal(bson.M{"_id": "key", "value": "1", "expiry": at})
	require.NoError(t, err)

	var got document
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.True(t, at.Equal(got.Expiry.Time()))
}

func TestInstant_UnmarshalInvalid(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"_id": "key", "value": "1", "expiry": "tomorrow"})
	require.NoError(t, err)

	var got document
	require.Error(t, bson.Unmarshal(raw, &got))
}
