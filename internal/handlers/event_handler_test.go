package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
	"github.com/campuskart/backend/internal/services"
	"github.com/campuskart/backend/internal/storage"
)

type recordingClaims struct {
	calls []bool
}

func (r *recordingClaims) SetAdmin(ctx context.Context, userID string, admin bool) error {
	r.calls = append(r.calls, admin)
	return nil
}

func postEvent(h *EventHandler, ceType, body string) int {
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Ce-Type", ceType)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	return rec.Code
}

func TestEventHandlerModeratesCreatedListing(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, err := moderation.New(store, moderation.Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutTrustRecord(ctx, &models.UserTrustRecord{UserID: "U"}))
	require.NoError(t, store.CreateListing(ctx, &models.Listing{ID: "L1", OwnerID: "U", Title: "weed"}))

	h := NewEventHandler(svc.Dispatcher, 0)
	created := `{
	  "value": {
	    "name": "projects/p/databases/(default)/documents/listings/L1",
	    "fields": {"ownerId": {"stringValue": "U"}, "title": {"stringValue": "weed"}}
	  }
	}`
	code := postEvent(h, services.EventDocumentCreated, created)
	assert.Equal(t, http.StatusOK, code)

	l, err := store.GetListing(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, l.Flagged)
	rec, err := store.GetTrustRecord(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Strikes)

	// Eventarc redelivers the same creation.
	assert.Equal(t, http.StatusOK, postEvent(h, services.EventDocumentCreated, created))
	rec, err = store.GetTrustRecord(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Strikes)

	// Listing updates are not moderated again.
	code = postEvent(h, services.EventDocumentWritten, `{
	  "value": {
	    "name": "projects/p/databases/(default)/documents/listings/L1",
	    "fields": {"ownerId": {"stringValue": "U"}, "title": {"stringValue": "weed"}}
	  }
	}`)
	assert.Equal(t, http.StatusOK, code)
	rec, err = store.GetTrustRecord(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Strikes)
}

func TestEventHandlerSyncsAdminClaim(t *testing.T) {
	store := storage.NewMemoryStore()
	claims := &recordingClaims{}
	svc, err := moderation.New(store, moderation.Options{Claims: claims})
	require.NoError(t, err)
	require.NoError(t, store.PutTrustRecord(context.Background(), &models.UserTrustRecord{UserID: "u1", Admin: true}))

	h := NewEventHandler(svc.Dispatcher, 0)
	code := postEvent(h, services.EventDocumentWritten, `{
	  "oldValue": {"name": "projects/p/databases/(default)/documents/users/u1", "fields": {"isAdmin": {"booleanValue": false}}},
	  "value":    {"name": "projects/p/databases/(default)/documents/users/u1", "fields": {"isAdmin": {"booleanValue": true}}}
	}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []bool{true}, claims.calls)

	rec, err := store.GetTrustRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, rec.ClaimsSyncedAt)
}

func TestEventHandlerRejectsBadRequests(t *testing.T) {
	svc, err := moderation.New(storage.NewMemoryStore(), moderation.Options{})
	require.NoError(t, err)
	h := NewEventHandler(svc.Dispatcher, 0)

	assert.Equal(t, http.StatusBadRequest, postEvent(h, services.EventDocumentCreated, `garbage`))
	assert.Equal(t, http.StatusOK, postEvent(h, services.EventDocumentCreated, `{
	  "value": {"name": "projects/p/databases/(default)/documents/reviews/r1", "fields": {}}
	}`))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
