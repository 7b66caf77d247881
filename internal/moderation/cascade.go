package moderation

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
)

// CascadeDeactivator hides every active listing of a banned seller.
type CascadeDeactivator struct {
	store  Store
	policy Policy
}

func NewCascadeDeactivator(store Store, policy Policy) *CascadeDeactivator {
	return &CascadeDeactivator{store: store, policy: policy.WithDefaults()}
}

// DeactivateAllFor runs inside the caller's transaction. Title and
// description are left untouched.
func (c *CascadeDeactivator) DeactivateAllFor(ctx context.Context, tx Tx, userID string) (int, error) {
	listings, err := tx.ActiveListingsByOwner(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("cascade: query active listings: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	patch := models.ListingPatch{
		Active:     models.Bool(false),
		Flagged:    models.Bool(true),
		FlagReason: models.String(c.policy.SellerBannedReason),
	}
	for _, l := range listings {
		if err := tx.PatchListing(ctx, l.ID, patch); err != nil {
			return 0, fmt.Errorf("cascade: deactivate listing %s: %w", l.ID, err)
		}
	}
	return len(listings), nil
}

// Run is the standalone form used after an admin ban, outside the ban write.
// The deactivations still commit together or not at all.
func (c *CascadeDeactivator) Run(ctx context.Context, userID string) (int, error) {
	var n int
	err := c.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = c.DeactivateAllFor(ctx, tx, userID)
		return err
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[cascade] deactivation failed")
		return 0, err
	}
	if n > 0 {
		metrics.ListingsCascaded.Add(float64(n))
		log.WithField("user_id", userID).Infof("[cascade] deactivated %d listing(s)", n)
	}
	return n, nil
}
