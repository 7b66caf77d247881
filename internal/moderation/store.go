package moderation

import (
	"context"
	"time"

	"github.com/campuskart/backend/internal/models"
)

// Tx is the view of the store available inside WithTransaction. All reads
// must happen before the first write (Firestore's rule); the ledger and the
// cascade are written in that order.
type Tx interface {
	Listing(ctx context.Context, listingID string) (*models.Listing, error)
	TrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error)
	ActiveListingsByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error)
	// PatchTrustRecord writes only the patched fields; the rest of the user
	// document is left as it is. A missing record fails with ErrNotFound.
	PatchTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) error
	PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error
}

// Store is the persistence collaborator. WithTransaction runs fn atomically
// and retries it on optimistic conflicts, so fn must be safe to re-run.
type Store interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, listingID string) (*models.Listing, error)
	PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error
	DeleteListing(ctx context.Context, listingID string) error

	GetTrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error)
	// GetOrCreateTrustRecord returns the record, creating a clean one when missing.
	GetOrCreateTrustRecord(ctx context.Context, userID, email string) (*models.UserTrustRecord, error)
	// UpdateTrustRecord is an unconditional overwrite of the patched fields.
	// It returns the record as it was before and after the write.
	UpdateTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) (before, after *models.UserTrustRecord, err error)
}

// ClaimsProvider maintains the external admin credential.
type ClaimsProvider interface {
	SetAdmin(ctx context.Context, userID string, admin bool) error
}

// ImageScreener judges a single listing image.
type ImageScreener interface {
	IsUnsafe(ctx context.Context, imageURI string) (bool, error)
}

// Clock lets tests pin timestamps.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
