package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingCreatedBody = `{
  "value": {
    "name": "projects/campuskart/databases/(default)/documents/listings/L4",
    "fields": {
      "ownerId":     {"stringValue": "U"},
      "title":       {"stringValue": "counterfeit sneakers"},
      "description": {"stringValue": "size 10"},
      "price":       {"integerValue": "40"},
      "active":      {"booleanValue": false},
      "imageUrls":   {"arrayValue": {"values": [{"stringValue": "gs://b/1.jpg"}]}},
      "createdAt":   {"timestampValue": "2024-09-02T10:00:00Z"}
    },
    "createTime": "2024-09-02T10:00:00Z",
    "updateTime": "2024-09-02T10:00:00Z"
  },
  "updateMask": {}
}`

func TestDecodeListingCreated(t *testing.T) {
	ev, err := DecodeDocumentEvent(EventDocumentCreated, []byte(listingCreatedBody))
	require.NoError(t, err)
	assert.Equal(t, "listings", ev.Collection)
	assert.Equal(t, "L4", ev.DocID)
	assert.Nil(t, ev.OldValue)

	l, err := ev.Listing()
	require.NoError(t, err)
	assert.Equal(t, "L4", l.ID)
	assert.Equal(t, "U", l.OwnerID)
	assert.Equal(t, "counterfeit sneakers", l.Title)
	assert.Equal(t, 40.0, l.Price)
	assert.False(t, l.Active)
	assert.Equal(t, []string{"gs://b/1.jpg"}, l.ImageURLs)
	assert.Equal(t, time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC), l.CreatedAt)
}

func TestDecodeStructuredUserWrite(t *testing.T) {
	body := `{
	  "specversion": "1.0",
	  "type": "google.cloud.firestore.document.v1.written",
	  "data": {
	    "oldValue": {
	      "name": "projects/p/databases/(default)/documents/users/uid-1",
	      "fields": {"isAdmin": {"booleanValue": false}, "strikes": {"integerValue": "2"}}
	    },
	    "value": {
	      "name": "projects/p/databases/(default)/documents/users/uid-1",
	      "fields": {
	        "isAdmin":  {"booleanValue": true},
	        "strikes":  {"integerValue": "2"},
	        "bannedAt": {"timestampValue": "2024-01-01T00:00:00Z"}
	      }
	    }
	  }
	}`

	ev, err := DecodeDocumentEvent("", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, EventDocumentWritten, ev.Type)
	assert.Equal(t, "users", ev.Collection)
	assert.Equal(t, "uid-1", ev.DocID)

	before, after := ev.TrustRecords()
	require.NotNil(t, before)
	require.NotNil(t, after)
	assert.False(t, before.Admin)
	assert.True(t, after.Admin)
	assert.Equal(t, "uid-1", after.UserID)
	assert.Equal(t, 2, after.Strikes)
	require.NotNil(t, after.BannedAt)
	assert.Nil(t, before.BannedAt)
}

func TestDecodeUserDelete(t *testing.T) {
	body := `{"oldValue": {"name": "projects/p/databases/(default)/documents/users/u9", "fields": {"isAdmin": {"booleanValue": true}}}}`

	ev, err := DecodeDocumentEvent(EventDocumentWritten, []byte(body))
	require.NoError(t, err)
	before, after := ev.TrustRecords()
	assert.Nil(t, after)
	require.NotNil(t, before)
	assert.True(t, before.Admin)

	_, err = ev.Listing()
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	_, err := DecodeDocumentEvent(EventDocumentCreated, []byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeDocumentEvent(EventDocumentCreated, []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = DecodeDocumentEvent(EventDocumentCreated, []byte(`{"value": {"name": "projects/p/databases/(default)/documents/listings"}}`))
	assert.Error(t, err)
}

func TestSplitDocumentName(t *testing.T) {
	tests := []struct {
		name, collection, id string
	}{
		{"projects/p/databases/(default)/documents/listings/abc", "listings", "abc"},
		{"projects/p/databases/(default)/documents/users/u1/devices/d1", "devices", "d1"},
		{"listings/abc", "listings", "abc"},
		{"projects/p/databases/(default)/documents/listings", "", ""},
	}
	for _, tc := range tests {
		c, id := splitDocumentName(tc.name)
		assert.Equal(t, tc.collection, c, tc.name)
		assert.Equal(t, tc.id, id, tc.name)
	}
}
