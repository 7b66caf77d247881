package storage

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

const (
	ListingsCollection = "listings"
	UsersCollection    = "users"

	defaultFirestoreMaxAttempts = 5
)

// FirestoreStore is the production store behind the Eventarc triggers.
type FirestoreStore struct {
	client      *firestore.Client
	maxAttempts int
}

var _ moderation.Store = (*FirestoreStore)(nil)

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, maxAttempts: defaultFirestoreMaxAttempts}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) listing(id string) *firestore.DocumentRef {
	return s.client.Collection(ListingsCollection).Doc(id)
}

func (s *FirestoreStore) user(id string) *firestore.DocumentRef {
	return s.client.Collection(UsersCollection).Doc(id)
}

func mapFirestoreErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return moderation.ErrNotFound
	}
	return err
}

// mapTxErr keeps the gRPC error and adds the matching store sentinel.
// RunTransaction reports exhausted retries as Aborted.
func mapTxErr(err error) error {
	switch status.Code(err) {
	case codes.Aborted:
		return errors.Join(moderation.ErrTooManyAttempts, err)
	case codes.NotFound:
		return errors.Join(moderation.ErrNotFound, err)
	}
	return err
}

func listingFromSnap(snap *firestore.DocumentSnapshot) (*models.Listing, error) {
	var l models.Listing
	if err := snap.DataTo(&l); err != nil {
		return nil, err
	}
	l.ID = snap.Ref.ID
	return &l, nil
}

func trustFromSnap(snap *firestore.DocumentSnapshot) (*models.UserTrustRecord, error) {
	var rec models.UserTrustRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, err
	}
	rec.UserID = snap.Ref.ID
	return &rec, nil
}

func listingUpdates(p models.ListingPatch) []firestore.Update {
	var ups []firestore.Update
	if p.Active != nil {
		ups = append(ups, firestore.Update{Path: "active", Value: *p.Active})
	}
	if p.Approved != nil {
		ups = append(ups, firestore.Update{Path: "approved", Value: *p.Approved})
	}
	if p.Flagged != nil {
		ups = append(ups, firestore.Update{Path: "flagged", Value: *p.Flagged})
	}
	if p.FlagReason != nil {
		if *p.FlagReason == "" {
			ups = append(ups, firestore.Update{Path: "flagReason", Value: firestore.Delete})
		} else {
			ups = append(ups, firestore.Update{Path: "flagReason", Value: *p.FlagReason})
		}
	}
	if p.ModeratedBy != nil {
		ups = append(ups, firestore.Update{Path: "moderatedBy", Value: *p.ModeratedBy})
	}
	if p.ModeratedAt != nil {
		ups = append(ups, firestore.Update{Path: "moderatedAt", Value: *p.ModeratedAt})
	}
	return ups
}

func trustUpdates(p models.TrustPatch, now time.Time) []firestore.Update {
	ups := []firestore.Update{{Path: "updatedAt", Value: now}}
	if p.Strikes != nil {
		ups = append(ups, firestore.Update{Path: "strikes", Value: *p.Strikes})
	}
	if p.Banned != nil {
		ups = append(ups, firestore.Update{Path: "banned", Value: *p.Banned})
	}
	if p.ClearBannedAt {
		ups = append(ups, firestore.Update{Path: "bannedAt", Value: firestore.Delete})
	} else if p.BannedAt != nil {
		ups = append(ups, firestore.Update{Path: "bannedAt", Value: *p.BannedAt})
	}
	if p.Admin != nil {
		ups = append(ups, firestore.Update{Path: "isAdmin", Value: *p.Admin})
	}
	if p.ClaimsSyncedAt != nil {
		ups = append(ups, firestore.Update{Path: "claimsSyncedAt", Value: *p.ClaimsSyncedAt})
	}
	return ups
}

type firestoreTx struct {
	s  *FirestoreStore
	tx *firestore.Transaction
}

func (t *firestoreTx) Listing(ctx context.Context, listingID string) (*models.Listing, error) {
	snap, err := t.tx.Get(t.s.listing(listingID))
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return listingFromSnap(snap)
}

func (t *firestoreTx) TrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	snap, err := t.tx.Get(t.s.user(userID))
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return trustFromSnap(snap)
}

func (t *firestoreTx) ActiveListingsByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	q := t.s.client.Collection(ListingsCollection).
		Where("ownerId", "==", ownerID).
		Where("active", "==", true)
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Listing, 0, len(snaps))
	for _, snap := range snaps {
		l, err := listingFromSnap(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// PatchTrustRecord uses Update, not Set: users/{uid} is the app's profile
// document and carries fields this service does not model.
func (t *firestoreTx) PatchTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) error {
	return t.tx.Update(t.s.user(userID), trustUpdates(patch, time.Now().UTC()))
}

func (t *firestoreTx) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	ups := listingUpdates(patch)
	if len(ups) == 0 {
		return nil
	}
	return t.tx.Update(t.s.listing(listingID), ups)
}

// WithTransaction uses Firestore's optimistic transactions; the client
// re-runs fn on contention up to maxAttempts times.
func (s *FirestoreStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx moderation.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{s: s, tx: tx})
	}, firestore.MaxAttempts(s.maxAttempts))
	return mapTxErr(err)
}

func (s *FirestoreStore) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := s.listing(l.ID).Create(ctx, l)
	return err
}

func (s *FirestoreStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	snap, err := s.listing(listingID).Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return listingFromSnap(snap)
}

func (s *FirestoreStore) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	ups := listingUpdates(patch)
	if len(ups) == 0 {
		return nil
	}
	_, err := s.listing(listingID).Update(ctx, ups)
	return mapFirestoreErr(err)
}

func (s *FirestoreStore) DeleteListing(ctx context.Context, listingID string) error {
	_, err := s.listing(listingID).Delete(ctx, firestore.Exists)
	return mapFirestoreErr(err)
}

func (s *FirestoreStore) GetTrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	snap, err := s.user(userID).Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return trustFromSnap(snap)
}

func (s *FirestoreStore) GetOrCreateTrustRecord(ctx context.Context, userID, email string) (*models.UserTrustRecord, error) {
	var out *models.UserTrustRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.user(userID)
		snap, err := tx.Get(ref)
		if err == nil {
			rec, err := trustFromSnap(snap)
			if err != nil {
				return err
			}
			if email != "" && rec.Email == "" {
				rec.Email = email
				rec.UpdatedAt = time.Now().UTC()
				if err := tx.Update(ref, []firestore.Update{
					{Path: "email", Value: email},
					{Path: "updatedAt", Value: rec.UpdatedAt},
				}); err != nil {
					return err
				}
			}
			out = rec
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		out = &models.UserTrustRecord{UserID: userID, Email: email, UpdatedAt: time.Now().UTC()}
		return tx.Create(ref, out)
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FirestoreStore) UpdateTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) (*models.UserTrustRecord, *models.UserTrustRecord, error) {
	var before, after *models.UserTrustRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.user(userID)
		snap, err := tx.Get(ref)
		if err != nil {
			return mapFirestoreErr(err)
		}
		rec, err := trustFromSnap(snap)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		before = rec.Clone()
		after = rec.Clone()
		patch.Apply(after, now)
		return tx.Update(ref, trustUpdates(patch, now))
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}
