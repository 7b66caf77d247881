package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

func seedTrust(t *testing.T, s *MemoryStore, userID string, strikes int) {
	t.Helper()
	require.NoError(t, s.PutTrustRecord(context.Background(), &models.UserTrustRecord{UserID: userID, Strikes: strikes}))
}

func incrementStrikes(userID string) func(ctx context.Context, tx moderation.Tx) error {
	return func(ctx context.Context, tx moderation.Tx) error {
		rec, err := tx.TrustRecord(ctx, userID)
		if err != nil {
			return err
		}
		return tx.PatchTrustRecord(ctx, userID, models.TrustPatch{Strikes: models.Int(rec.Strikes + 1)})
	}
}

func TestTransactionRetriesOnConflict(t *testing.T) {
	s := NewMemoryStore()
	seedTrust(t, s, "u1", 0)

	attempts := 0
	s.beforeCommit = func(attempt int) {
		attempts = attempt
		if attempt == 1 {
			// A concurrent writer lands between read and commit.
			_, _, err := s.UpdateTrustRecord(context.Background(), "u1", models.TrustPatch{Strikes: models.Int(5)})
			require.NoError(t, err)
		}
	}

	require.NoError(t, s.WithTransaction(context.Background(), incrementStrikes("u1")))
	assert.Equal(t, 2, attempts)

	rec, err := s.GetTrustRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 6, rec.Strikes)
}

func TestTransactionGivesUp(t *testing.T) {
	s := NewMemoryStore()
	s.SetMaxAttempts(3)
	seedTrust(t, s, "u1", 0)

	s.beforeCommit = func(int) {
		_, _, err := s.UpdateTrustRecord(context.Background(), "u1", models.TrustPatch{Banned: models.Bool(false)})
		require.NoError(t, err)
	}

	err := s.WithTransaction(context.Background(), incrementStrikes("u1"))
	assert.ErrorIs(t, err, moderation.ErrTooManyAttempts)

	rec, err := s.GetTrustRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Strikes)
}

func TestTransactionRejectsReadAfterWrite(t *testing.T) {
	s := NewMemoryStore()
	seedTrust(t, s, "u1", 0)

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx moderation.Tx) error {
		if err := tx.PatchTrustRecord(ctx, "u1", models.TrustPatch{Strikes: models.Int(9)}); err != nil {
			return err
		}
		_, err := tx.TrustRecord(ctx, "u1")
		return err
	})
	assert.ErrorIs(t, err, errReadAfterWrite)

	rec, err := s.GetTrustRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Strikes)
}

func TestTransactionIsAllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedTrust(t, s, "u1", 0)
	require.NoError(t, s.CreateListing(ctx, &models.Listing{ID: "a", OwnerID: "u1", Active: true}))

	err := s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		if _, err := tx.TrustRecord(ctx, "u1"); err != nil {
			return err
		}
		if err := tx.PatchTrustRecord(ctx, "u1", models.TrustPatch{Banned: models.Bool(true)}); err != nil {
			return err
		}
		if err := tx.PatchListing(ctx, "a", models.ListingPatch{Active: models.Bool(false)}); err != nil {
			return err
		}
		return tx.PatchListing(ctx, "missing", models.ListingPatch{Active: models.Bool(false)})
	})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	rec, err := s.GetTrustRecord(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rec.Banned)
	l, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.True(t, l.Active)
}

func TestOwnerIndexConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateListing(ctx, &models.Listing{ID: "a", OwnerID: "u1", Active: true}))

	seen := 0
	s.beforeCommit = func(attempt int) {
		if attempt == 1 {
			require.NoError(t, s.CreateListing(ctx, &models.Listing{ID: "b", OwnerID: "u1", Active: true}))
		}
	}
	err := s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		ls, err := tx.ActiveListingsByOwner(ctx, "u1")
		if err != nil {
			return err
		}
		seen = len(ls)
		for _, l := range ls {
			if err := tx.PatchListing(ctx, l.ID, models.ListingPatch{Active: models.Bool(false)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)

	all, err := s.ListingsByOwner(ctx, "u1")
	require.NoError(t, err)
	for _, l := range all {
		assert.False(t, l.Active, l.ID)
	}
}

func TestTransactionHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUpdateTrustRecordReturnsBeforeAndAfter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedTrust(t, s, "u1", 2)

	before, after, err := s.UpdateTrustRecord(ctx, "u1", models.TrustPatch{Admin: models.Bool(true)})
	require.NoError(t, err)
	assert.False(t, before.Admin)
	assert.True(t, after.Admin)
	assert.Equal(t, 2, after.Strikes)

	_, _, err = s.UpdateTrustRecord(ctx, "ghost", models.TrustPatch{})
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestGetOrCreateTrustRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec, err := s.GetOrCreateTrustRecord(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, 0, rec.Strikes)

	rec, err = s.GetOrCreateTrustRecord(ctx, "u1", "u1@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, "u1@campus.edu", rec.Email)

	rec, err = s.GetOrCreateTrustRecord(ctx, "u1", "other@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, "u1@campus.edu", rec.Email)
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	banned := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateListing(ctx, &models.Listing{ID: "a", OwnerID: "u1", Title: "Desk", Active: true}))
	require.NoError(t, s.PutTrustRecord(ctx, &models.UserTrustRecord{UserID: "u1", Strikes: 3, Banned: true, BannedAt: &banned}))
	require.NoError(t, s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		return tx.PatchListing(ctx, "a", models.ListingPatch{Active: models.Bool(false), FlagReason: models.String("seller_banned")})
	}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	l, err := reopened.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Desk", l.Title)
	assert.False(t, l.Active)
	assert.Equal(t, "seller_banned", l.FlagReason)

	rec, err := reopened.GetTrustRecord(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Banned)
	require.NotNil(t, rec.BannedAt)
	assert.True(t, banned.Equal(*rec.BannedAt))
}

func TestJSONStoreMissingFile(t *testing.T) {
	js, err := NewJSONStore(t.TempDir(), "none.json")
	require.NoError(t, err)
	snap, err := js.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Listings)
	assert.Empty(t, snap.TrustRecords)
}

func TestPatchUpdatesBuildExpectedDocuments(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	u := listingPatchUpdate(models.ListingPatch{Active: models.Bool(false), FlagReason: models.String("")})
	assert.Equal(t, false, u["$set"].(bson.M)["active"])
	assert.Contains(t, u["$unset"], "flag_reason")

	tu := trustPatchUpdate(models.TrustPatch{Strikes: models.Int(0), ClearBannedAt: true}, now)
	set := tu["$set"].(bson.M)
	assert.Equal(t, 0, set["strikes"])
	assert.Equal(t, now, set["updated_at"])
	assert.Contains(t, tu["$unset"], "banned_at")

	ups := listingUpdates(models.ListingPatch{Flagged: models.Bool(true)})
	require.Len(t, ups, 1)
	assert.Equal(t, "flagged", ups[0].Path)

	assert.Len(t, trustUpdates(models.TrustPatch{Admin: models.Bool(true)}, now), 2)
	assert.Empty(t, listingPatchUpdate(models.ListingPatch{}))
}

func TestTransactionPatchKeepsUnpatchedFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	synced := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutTrustRecord(ctx, &models.UserTrustRecord{
		UserID: "u1", Email: "u1@campus.edu", DisplayName: "Sam", Admin: true, Strikes: 2, ClaimsSyncedAt: &synced,
	}))

	banned := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		return tx.PatchTrustRecord(ctx, "u1", models.TrustPatch{
			Strikes: models.Int(3), Banned: models.Bool(true), BannedAt: &banned,
		})
	}))

	rec, err := s.GetTrustRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Strikes)
	assert.True(t, rec.Banned)
	assert.Equal(t, banned, *rec.BannedAt)
	assert.Equal(t, "u1@campus.edu", rec.Email)
	assert.Equal(t, "Sam", rec.DisplayName)
	assert.True(t, rec.Admin)
	assert.Equal(t, synced, *rec.ClaimsSyncedAt)
}

func TestTransactionPatchMissingTrustRecord(t *testing.T) {
	s := NewMemoryStore()
	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx moderation.Tx) error {
		return tx.PatchTrustRecord(ctx, "ghost", models.TrustPatch{Strikes: models.Int(1)})
	})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	_, err = s.GetTrustRecord(context.Background(), "ghost")
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestTransactionListingReadConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateListing(ctx, &models.Listing{ID: "a", OwnerID: "u1"}))

	s.beforeCommit = func(attempt int) {
		if attempt == 1 {
			require.NoError(t, s.PatchListing(ctx, "a", models.ListingPatch{ModeratedBy: models.String("other")}))
		}
	}
	var seen []string
	require.NoError(t, s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		l, err := tx.Listing(ctx, "a")
		if err != nil {
			return err
		}
		seen = append(seen, l.ModeratedBy)
		if l.ModeratedBy != "" {
			return nil
		}
		return tx.PatchListing(ctx, "a", models.ListingPatch{ModeratedBy: models.String("me")})
	}))
	assert.Equal(t, []string{"", "other"}, seen)

	l, err := s.GetListing(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "other", l.ModeratedBy)

	err = s.WithTransaction(ctx, func(ctx context.Context, tx moderation.Tx) error {
		_, err := tx.Listing(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}
