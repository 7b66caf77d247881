package moderation

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/models"
)

type (
	ListingCreatedHandler     func(ctx context.Context, l *models.Listing) error
	TrustRecordWrittenHandler func(ctx context.Context, before, after *models.UserTrustRecord) error
)

// Dispatcher fans store events out to registered handlers. Handlers are
// registered at startup; each dispatch runs them in order and to completion.
type Dispatcher struct {
	mu      sync.RWMutex
	created []ListingCreatedHandler
	written []TrustRecordWrittenHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) OnListingCreated(h ListingCreatedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, h)
}

func (d *Dispatcher) OnTrustRecordWritten(h TrustRecordWrittenHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, h)
}

// ListingCreated runs every listing handler and joins their errors.
func (d *Dispatcher) ListingCreated(ctx context.Context, l *models.Listing) error {
	d.mu.RLock()
	handlers := append([]ListingCreatedHandler(nil), d.created...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, l); err != nil {
			log.WithError(err).WithField("listing_id", l.ID).Error("[events] listing.created handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TrustRecordWritten runs every trust record handler and joins their errors.
func (d *Dispatcher) TrustRecordWritten(ctx context.Context, before, after *models.UserTrustRecord) error {
	d.mu.RLock()
	handlers := append([]TrustRecordWrittenHandler(nil), d.written...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, before, after); err != nil {
			log.WithError(err).Error("[events] trust.written handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
