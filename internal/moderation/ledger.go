package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
)

// Outcome describes what RecordViolation committed.
type Outcome struct {
	Found         bool `json:"found"`
	Strikes       int  `json:"strikes"`
	Banned        bool `json:"banned"`
	BanTransition bool `json:"ban_transition"`
	Cascaded      int  `json:"cascaded"`
}

// TrustLedger owns strike counting and automated bans.
type TrustLedger struct {
	store   Store
	policy  Policy
	cascade *CascadeDeactivator
	now     Clock
}

func NewTrustLedger(store Store, policy Policy, cascade *CascadeDeactivator) *TrustLedger {
	return &TrustLedger{
		store:   store,
		policy:  policy.WithDefaults(),
		cascade: cascade,
		now:     systemClock,
	}
}

// SetClock overrides the timestamp source.
func (l *TrustLedger) SetClock(c Clock) { l.now = c }

// applyStrike adds one strike and reports whether this strike banned the user.
// An already banned user keeps the original ban timestamp.
func applyStrike(rec *models.UserTrustRecord, threshold int, now time.Time) bool {
	rec.Strikes++
	rec.UpdatedAt = now
	if rec.Strikes >= threshold && !rec.Banned {
		rec.Banned = true
		rec.BannedAt = &now
		return true
	}
	return false
}

// strikePatch is the write-back for one strike: the new count and, on the
// ban transition only, the ban flag and timestamp.
func strikePatch(rec *models.UserTrustRecord, banTransition bool) models.TrustPatch {
	p := models.TrustPatch{Strikes: models.Int(rec.Strikes)}
	if banTransition {
		p.Banned = models.Bool(true)
		p.BannedAt = rec.BannedAt
	}
	return p
}

// RecordViolation adds a strike for userID. A missing record is a no-op:
// nothing is created and no error is returned. When the strike crosses the
// threshold, the user's active listings are deactivated in the same
// transaction.
func (l *TrustLedger) RecordViolation(ctx context.Context, userID string) (Outcome, error) {
	if strings.TrimSpace(userID) == "" {
		log.Warn("[ledger] violation without owner id, strike not recorded")
		metrics.StrikesDropped.Inc()
		return Outcome{}, nil
	}

	var out Outcome
	err := l.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		out = Outcome{}

		rec, err := tx.TrustRecord(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read trust record: %w", err)
		}
		out.Found = true

		out.BanTransition = applyStrike(rec, l.policy.StrikeThreshold, l.now())
		out.Strikes = rec.Strikes
		out.Banned = rec.Banned

		if out.BanTransition && l.cascade != nil {
			n, err := l.cascade.DeactivateAllFor(ctx, tx, userID)
			if err != nil {
				return err
			}
			out.Cascaded = n
		}

		return tx.PatchTrustRecord(ctx, userID, strikePatch(rec, out.BanTransition))
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[ledger] record violation failed")
		return Outcome{}, err
	}

	entry := log.WithField("user_id", userID)
	if !out.Found {
		metrics.StrikesDropped.Inc()
		entry.Warn("[ledger] no trust record, strike dropped")
		return out, nil
	}

	metrics.StrikesRecorded.Inc()
	entry = entry.WithField("strikes", out.Strikes)
	if out.BanTransition {
		metrics.UsersBanned.WithLabelValues("automated").Inc()
		metrics.ListingsCascaded.Add(float64(out.Cascaded))
		entry.WithField("cascaded", out.Cascaded).Warn("[ledger] strike threshold reached, user banned")
	} else {
		entry.Info("[ledger] strike recorded")
	}
	return out, nil
}
