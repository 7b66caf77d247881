package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
)

// Decision is the gate's verdict for one listing.
type Decision struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason,omitempty"`
	// Term is the matched blacklist entry, kept out of API responses.
	Term string `json:"-"`
	// Repeat is set when the listing already had a verdict and nothing was written.
	Repeat bool `json:"-"`
}

// ContentSubmissionGate moderates listings once, when they are created.
type ContentSubmissionGate struct {
	store    Store
	ledger   *TrustLedger
	policy   Policy
	matcher  *Matcher
	screener ImageScreener
	now      Clock
}

func NewContentSubmissionGate(store Store, ledger *TrustLedger, policy Policy) (*ContentSubmissionGate, error) {
	policy = policy.WithDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(policy.Terms)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	return &ContentSubmissionGate{
		store:   store,
		ledger:  ledger,
		policy:  policy,
		matcher: matcher,
		now:     systemClock,
	}, nil
}

// SetImageScreener enables image screening for listings whose text is clean.
func (g *ContentSubmissionGate) SetImageScreener(s ImageScreener) { g.screener = s }

func (g *ContentSubmissionGate) SetClock(c Clock) { g.now = c }

// Evaluate classifies the listing's title and description. Missing fields
// count as empty text.
func (g *ContentSubmissionGate) Evaluate(l *models.Listing) Decision {
	if l == nil {
		return Decision{}
	}
	text := l.Title + "\n" + l.Description
	if term, ok := g.matcher.Match(text); ok {
		return Decision{Flagged: true, Reason: g.policy.ViolationReason, Term: term}
	}
	return Decision{}
}

func (g *ContentSubmissionGate) screenImages(ctx context.Context, l *models.Listing) Decision {
	if g.screener == nil {
		return Decision{}
	}
	for _, uri := range l.ImageURLs {
		if strings.TrimSpace(uri) == "" {
			continue
		}
		unsafe, err := g.screener.IsUnsafe(ctx, uri)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"listing_id": l.ID,
				"image":      uri,
			}).Warn("[gate] image screening failed, skipping image")
			continue
		}
		if unsafe {
			return Decision{Flagged: true, Reason: g.policy.UnsafeImageReason}
		}
	}
	return Decision{}
}

// Moderate evaluates l and writes the verdict back onto the stored listing.
// If the listing was deleted in the meantime, or already carries a verdict
// from an earlier delivery of the same event, nothing is written and no
// strike is recorded.
func (g *ContentSubmissionGate) Moderate(ctx context.Context, l *models.Listing) (Decision, error) {
	d := g.Evaluate(l)
	if !d.Flagged {
		d = g.screenImages(ctx, l)
	}

	now := g.now()
	var patch models.ListingPatch
	if d.Flagged {
		patch = models.ListingPatch{
			Active:      models.Bool(false),
			Flagged:     models.Bool(true),
			FlagReason:  models.String(d.Reason),
			ModeratedBy: models.String(g.policy.Actor),
			ModeratedAt: models.Time(now),
		}
	} else {
		patch = models.ListingPatch{
			Active:      models.Bool(true),
			Approved:    models.Bool(true),
			Flagged:     models.Bool(false),
			ModeratedBy: models.String(g.policy.Actor),
			ModeratedAt: models.Time(now),
		}
	}

	entry := log.WithFields(log.Fields{"listing_id": l.ID, "owner_id": l.OwnerID})
	sellerBanned, repeat := false, false
	err := g.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		sellerBanned, repeat = false, false
		cur, err := tx.Listing(ctx, l.ID)
		if err != nil {
			return err
		}
		if cur.ModeratedBy != "" {
			repeat = true
			return nil
		}
		p := patch
		// A ban may have committed while the listing was pending; the
		// cascade only sees active listings, so the gate keeps it hidden.
		if !d.Flagged && l.OwnerID != "" {
			rec, err := tx.TrustRecord(ctx, l.OwnerID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if rec != nil && rec.Banned {
				sellerBanned = true
				p = models.ListingPatch{
					Active:      models.Bool(false),
					Flagged:     models.Bool(true),
					FlagReason:  models.String(g.policy.SellerBannedReason),
					ModeratedBy: models.String(g.policy.Actor),
					ModeratedAt: models.Time(now),
				}
			}
		}
		return tx.PatchListing(ctx, l.ID, p)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			entry.Info("[gate] listing gone before moderation was written, skipping")
			return d, nil
		}
		return d, fmt.Errorf("gate: write decision for %s: %w", l.ID, err)
	}
	if repeat {
		metrics.ModerationDecisions.WithLabelValues("repeat", "").Inc()
		entry.Info("[gate] listing already moderated, skipping")
		return Decision{Repeat: true}, nil
	}
	if sellerBanned {
		metrics.ModerationDecisions.WithLabelValues("flagged", g.policy.SellerBannedReason).Inc()
		entry.Info("[gate] seller is banned, listing kept hidden")
		return Decision{Flagged: true, Reason: g.policy.SellerBannedReason}, nil
	}

	if !d.Flagged {
		metrics.ModerationDecisions.WithLabelValues("clean", "").Inc()
		entry.Debug("[gate] listing approved")
		return d, nil
	}

	metrics.ModerationDecisions.WithLabelValues("flagged", d.Reason).Inc()
	entry.WithField("reason", d.Reason).Info("[gate] listing flagged")

	if g.ledger == nil {
		return d, nil
	}
	if _, err := g.ledger.RecordViolation(ctx, l.OwnerID); err != nil {
		return d, fmt.Errorf("gate: record violation for %s: %w", l.OwnerID, err)
	}
	return d, nil
}

// HandleListingCreated is the ListingCreated event handler.
func (g *ContentSubmissionGate) HandleListingCreated(ctx context.Context, l *models.Listing) error {
	_, err := g.Moderate(ctx, l)
	return err
}
