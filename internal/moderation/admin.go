package moderation

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
)

// AdminService is the entry point for the admin console. Trust record writes
// here are plain overwrites, not strike transactions.
type AdminService struct {
	store      Store
	cascade    *CascadeDeactivator
	dispatcher *Dispatcher
	policy     Policy
	now        Clock
}

// NewAdminService wires the admin actions. dispatcher may be nil when the
// database delivers write events itself (Firestore + Eventarc).
func NewAdminService(store Store, cascade *CascadeDeactivator, dispatcher *Dispatcher, policy Policy) *AdminService {
	return &AdminService{
		store:      store,
		cascade:    cascade,
		dispatcher: dispatcher,
		policy:     policy.WithDefaults(),
		now:        systemClock,
	}
}

func (a *AdminService) SetClock(c Clock) { a.now = c }

func (a *AdminService) writeTrust(ctx context.Context, userID string, patch models.TrustPatch) (*models.UserTrustRecord, error) {
	before, after, err := a.store.UpdateTrustRecord(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	if a.dispatcher != nil {
		_ = a.dispatcher.TrustRecordWritten(ctx, before, after)
	}
	return after, nil
}

// Ban marks the user banned and then deactivates their active listings in a
// separate transaction. A failed cascade is logged; the ban stands.
func (a *AdminService) Ban(ctx context.Context, adminID, userID string) (int, error) {
	now := a.now()
	if _, err := a.writeTrust(ctx, userID, models.TrustPatch{
		Banned:   models.Bool(true),
		BannedAt: models.Time(now),
	}); err != nil {
		return 0, fmt.Errorf("ban %s: %w", userID, err)
	}
	metrics.UsersBanned.WithLabelValues("admin").Inc()
	log.WithFields(log.Fields{"user_id": userID, "admin_id": adminID}).Warn("[admin] user banned")

	if a.cascade == nil {
		return 0, nil
	}
	n, err := a.cascade.Run(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[admin] cascade after ban failed")
		return 0, nil
	}
	return n, nil
}

// Unban clears the ban and resets the strike count to zero.
func (a *AdminService) Unban(ctx context.Context, adminID, userID string) error {
	if _, err := a.writeTrust(ctx, userID, models.TrustPatch{
		Banned:        models.Bool(false),
		Strikes:       models.Int(0),
		ClearBannedAt: true,
	}); err != nil {
		return fmt.Errorf("unban %s: %w", userID, err)
	}
	log.WithFields(log.Fields{"user_id": userID, "admin_id": adminID}).Info("[admin] user unbanned")
	return nil
}

// SetAdminFlag flips the profile flag; the claim follows via the
// TrustRecordWritten handlers.
func (a *AdminService) SetAdminFlag(ctx context.Context, adminID, userID string, admin bool) (*models.UserTrustRecord, error) {
	after, err := a.writeTrust(ctx, userID, models.TrustPatch{Admin: models.Bool(admin)})
	if err != nil {
		return nil, fmt.Errorf("set admin flag %s: %w", userID, err)
	}
	log.WithFields(log.Fields{"user_id": userID, "admin_id": adminID, "admin": admin}).Info("[admin] admin flag set")
	return after, nil
}

func (a *AdminService) ApproveListing(ctx context.Context, adminID, listingID string) error {
	err := a.store.PatchListing(ctx, listingID, models.ListingPatch{
		Active:      models.Bool(true),
		Approved:    models.Bool(true),
		Flagged:     models.Bool(false),
		FlagReason:  models.String(""),
		ModeratedBy: models.String(adminID),
		ModeratedAt: models.Time(a.now()),
	})
	if err != nil {
		return fmt.Errorf("approve listing %s: %w", listingID, err)
	}
	log.WithFields(log.Fields{"listing_id": listingID, "admin_id": adminID}).Info("[admin] listing approved")
	return nil
}

func (a *AdminService) RejectListing(ctx context.Context, adminID, listingID string) error {
	err := a.store.PatchListing(ctx, listingID, models.ListingPatch{
		Active:      models.Bool(false),
		Approved:    models.Bool(false),
		Flagged:     models.Bool(true),
		FlagReason:  models.String(a.policy.RejectedReason),
		ModeratedBy: models.String(adminID),
		ModeratedAt: models.Time(a.now()),
	})
	if err != nil {
		return fmt.Errorf("reject listing %s: %w", listingID, err)
	}
	log.WithFields(log.Fields{"listing_id": listingID, "admin_id": adminID}).Info("[admin] listing rejected")
	return nil
}

func (a *AdminService) DeleteListing(ctx context.Context, adminID, listingID string) error {
	if err := a.store.DeleteListing(ctx, listingID); err != nil {
		return fmt.Errorf("delete listing %s: %w", listingID, err)
	}
	log.WithFields(log.Fields{"listing_id": listingID, "admin_id": adminID}).Info("[admin] listing deleted")
	return nil
}
