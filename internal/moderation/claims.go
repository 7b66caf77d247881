package moderation

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
)

// AdminClaimSynchronizer mirrors UserTrustRecord.Admin into the identity
// provider's custom claims.
type AdminClaimSynchronizer struct {
	store          Store
	claims         ClaimsProvider
	allowBootstrap bool
	now            Clock
}

func NewAdminClaimSynchronizer(store Store, claims ClaimsProvider, allowBootstrap bool) *AdminClaimSynchronizer {
	return &AdminClaimSynchronizer{
		store:          store,
		claims:         claims,
		allowBootstrap: allowBootstrap,
		now:            systemClock,
	}
}

func (s *AdminClaimSynchronizer) SetClock(c Clock) { s.now = c }

// HandleTrustRecordWritten reacts to a profile write. before is nil on
// create, after is nil on delete. Provider failures are logged and swallowed;
// the triggering write stands.
func (s *AdminClaimSynchronizer) HandleTrustRecordWritten(ctx context.Context, before, after *models.UserTrustRecord) error {
	wasAdmin := before != nil && before.Admin
	isAdmin := after != nil && after.Admin
	if wasAdmin == isAdmin {
		return nil
	}

	userID := ""
	switch {
	case after != nil:
		userID = after.UserID
	case before != nil:
		userID = before.UserID
	}
	if userID == "" {
		log.Warn("[claims] admin flag changed on a record without user id")
		return nil
	}

	action := "revoke"
	if isAdmin {
		action = "grant"
	}
	entry := log.WithFields(log.Fields{"user_id": userID, "action": action})

	if s.claims == nil {
		metrics.ClaimSyncs.WithLabelValues(action, "unavailable").Inc()
		entry.Warn("[claims] no claims provider configured, admin claim not synced")
		return nil
	}
	if err := s.claims.SetAdmin(ctx, userID, isAdmin); err != nil {
		metrics.ClaimSyncs.WithLabelValues(action, "error").Inc()
		entry.WithError(err).Error("[claims] admin claim sync failed")
		return nil
	}
	metrics.ClaimSyncs.WithLabelValues(action, "ok").Inc()
	entry.Info("[claims] admin claim synced")

	if after == nil {
		return nil
	}
	if _, _, err := s.store.UpdateTrustRecord(ctx, userID, models.TrustPatch{ClaimsSyncedAt: models.Time(s.now())}); err != nil {
		entry.WithError(err).Warn("[claims] failed to stamp claims_synced_at")
	}
	return nil
}

// SelfGrantAdmin makes userID an admin by setting the claim and the profile
// flag together. It is meant for first-time setup only.
func (s *AdminClaimSynchronizer) SelfGrantAdmin(ctx context.Context, userID, email string) (*models.UserTrustRecord, error) {
	if !s.allowBootstrap {
		return nil, ErrBootstrapDisabled
	}
	if s.claims == nil {
		return nil, ErrClaimsUnavailable
	}
	if _, err := s.store.GetOrCreateTrustRecord(ctx, userID, email); err != nil {
		return nil, fmt.Errorf("self-grant: load profile: %w", err)
	}
	if err := s.claims.SetAdmin(ctx, userID, true); err != nil {
		metrics.ClaimSyncs.WithLabelValues("grant", "error").Inc()
		return nil, fmt.Errorf("self-grant: set claim: %w", err)
	}
	metrics.ClaimSyncs.WithLabelValues("grant", "ok").Inc()

	_, after, err := s.store.UpdateTrustRecord(ctx, userID, models.TrustPatch{
		Admin:          models.Bool(true),
		ClaimsSyncedAt: models.Time(s.now()),
	})
	if err != nil {
		// Keep the claim and the flag in step.
		if rerr := s.claims.SetAdmin(ctx, userID, false); rerr != nil {
			log.WithError(rerr).WithField("user_id", userID).Error("[claims] self-grant rollback failed")
		}
		return nil, fmt.Errorf("self-grant: set profile flag: %w", err)
	}
	log.WithField("user_id", userID).Warn("[claims] admin self-granted")
	return after, nil
}
