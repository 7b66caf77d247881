package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/metrics"
	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

const defaultMemoryMaxAttempts = 50

var errReadAfterWrite = errors.New("transaction read after write")

// MemoryStore is an in-process moderation.Store with optimistic
// transactions. Every listing, trust record and owner index carries a
// version; a transaction commits only if nothing it read has changed.
type MemoryStore struct {
	mu sync.Mutex

	listings map[string]*models.Listing
	trust    map[string]*models.UserTrustRecord
	versions map[string]uint64
	clock    uint64

	maxAttempts int
	file        *JSONStore

	// beforeCommit runs after fn and before validation; tests use it to force conflicts.
	beforeCommit func(attempt int)
}

var _ moderation.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:    make(map[string]*models.Listing),
		trust:       make(map[string]*models.UserTrustRecord),
		versions:    make(map[string]uint64),
		maxAttempts: defaultMemoryMaxAttempts,
	}
}

// NewFileStore is a MemoryStore that loads from and saves to dataDir.
func NewFileStore(dataDir string) (*MemoryStore, error) {
	js, err := NewJSONStore(dataDir, "campuskart.json")
	if err != nil {
		return nil, err
	}
	snap, err := js.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", js.Path(), err)
	}

	s := NewMemoryStore()
	s.file = js
	for i := range snap.Listings {
		l := snap.Listings[i]
		s.listings[l.ID] = &l
	}
	for i := range snap.TrustRecords {
		r := snap.TrustRecords[i]
		s.trust[r.UserID] = &r
	}
	log.Printf("[store] loaded %d listing(s), %d trust record(s) from %s", len(snap.Listings), len(snap.TrustRecords), js.Path())
	return s, nil
}

// SetMaxAttempts bounds transaction retries.
func (s *MemoryStore) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	s.maxAttempts = n
}

func listingKey(id string) string { return "listing/" + id }
func trustKey(id string) string   { return "trust/" + id }
func ownerKey(id string) string   { return "owner/" + id }

// bump must be called with s.mu held.
func (s *MemoryStore) bump(keys ...string) {
	s.clock++
	for _, k := range keys {
		s.versions[k] = s.clock
	}
}

// persist must be called with s.mu held.
func (s *MemoryStore) persist() {
	if s.file == nil {
		return
	}
	snap := &snapshot{
		Listings:     make([]models.Listing, 0, len(s.listings)),
		TrustRecords: make([]models.UserTrustRecord, 0, len(s.trust)),
	}
	for _, l := range s.listings {
		snap.Listings = append(snap.Listings, *cloneListing(l))
	}
	for _, r := range s.trust {
		snap.TrustRecords = append(snap.TrustRecords, *r.Clone())
	}
	if err := s.file.Save(snap); err != nil {
		log.WithError(err).Error("[store] failed to save snapshot")
	}
}

func cloneListing(l *models.Listing) *models.Listing {
	out := *l
	if l.ImageURLs != nil {
		out.ImageURLs = append([]string(nil), l.ImageURLs...)
	}
	if l.ModeratedAt != nil {
		t := *l.ModeratedAt
		out.ModeratedAt = &t
	}
	return &out
}

type listingWrite struct {
	id    string
	patch models.ListingPatch
}

type trustWrite struct {
	id    string
	patch models.TrustPatch
}

type memTx struct {
	s      *MemoryStore
	reads  map[string]uint64
	trust  []trustWrite
	patch  []listingWrite
	writes bool
}

func (t *memTx) Listing(ctx context.Context, listingID string) (*models.Listing, error) {
	if t.writes {
		return nil, errReadAfterWrite
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	k := listingKey(listingID)
	t.reads[k] = t.s.versions[k]
	l, ok := t.s.listings[listingID]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return cloneListing(l), nil
}

func (t *memTx) TrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	if t.writes {
		return nil, errReadAfterWrite
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	k := trustKey(userID)
	t.reads[k] = t.s.versions[k]
	rec, ok := t.s.trust[userID]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTx) ActiveListingsByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	if t.writes {
		return nil, errReadAfterWrite
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	k := ownerKey(ownerID)
	t.reads[k] = t.s.versions[k]
	out := make([]*models.Listing, 0)
	for _, l := range t.s.listings {
		if l.OwnerID == ownerID && l.Active {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) PatchTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) error {
	t.writes = true
	t.trust = append(t.trust, trustWrite{id: userID, patch: patch})
	return nil
}

func (t *memTx) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	t.writes = true
	t.patch = append(t.patch, listingWrite{id: listingID, patch: patch})
	return nil
}

// commit validates the read set and applies the buffered writes.
func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range t.reads {
		if s.versions[k] != v {
			return moderation.ErrConflict
		}
	}
	for _, w := range t.trust {
		if _, ok := s.trust[w.id]; !ok {
			return fmt.Errorf("patch trust record %s: %w", w.id, moderation.ErrNotFound)
		}
	}
	for _, w := range t.patch {
		if _, ok := s.listings[w.id]; !ok {
			return fmt.Errorf("patch listing %s: %w", w.id, moderation.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	for _, w := range t.trust {
		w.patch.Apply(s.trust[w.id], now)
		s.bump(trustKey(w.id))
	}
	for _, w := range t.patch {
		l := s.listings[w.id]
		w.patch.Apply(l)
		s.bump(listingKey(w.id), ownerKey(l.OwnerID))
	}
	if len(t.trust) > 0 || len(t.patch) > 0 {
		s.persist()
	}
	return nil
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx moderation.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{
			s:     s,
			reads: make(map[string]uint64),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(attempt)
		}
		err := tx.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, moderation.ErrConflict) {
			return err
		}

		metrics.TransactionRetries.WithLabelValues("memory").Inc()
		backoff := time.Duration(rand.Intn(attempt*200+1)) * time.Microsecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("memory store: %w after %d attempts", moderation.ErrTooManyAttempts, s.maxAttempts)
}

func (s *MemoryStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("create listing: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[l.ID]; exists {
		return fmt.Errorf("create listing %s: already exists", l.ID)
	}
	s.listings[l.ID] = cloneListing(l)
	s.bump(listingKey(l.ID), ownerKey(l.OwnerID))
	s.persist()
	return nil
}

func (s *MemoryStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return cloneListing(l), nil
}

func (s *MemoryStore) PatchListing(ctx context.Context, listingID string, patch models.ListingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return moderation.ErrNotFound
	}
	patch.Apply(l)
	s.bump(listingKey(listingID), ownerKey(l.OwnerID))
	s.persist()
	return nil
}

func (s *MemoryStore) DeleteListing(ctx context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return moderation.ErrNotFound
	}
	delete(s.listings, listingID)
	s.bump(listingKey(listingID), ownerKey(l.OwnerID))
	s.persist()
	return nil
}

// ListingsByOwner returns every listing owned by ownerID, oldest first.
func (s *MemoryStore) ListingsByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Listing, 0)
	for _, l := range s.listings {
		if l.OwnerID == ownerID {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetTrustRecord(ctx context.Context, userID string) (*models.UserTrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trust[userID]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) GetOrCreateTrustRecord(ctx context.Context, userID, email string) (*models.UserTrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.trust[userID]; ok {
		if email != "" && rec.Email == "" {
			rec.Email = email
			rec.UpdatedAt = time.Now().UTC()
			s.bump(trustKey(userID))
			s.persist()
		}
		return rec.Clone(), nil
	}
	rec := &models.UserTrustRecord{
		UserID:    userID,
		Email:     email,
		UpdatedAt: time.Now().UTC(),
	}
	s.trust[userID] = rec
	s.bump(trustKey(userID))
	s.persist()
	return rec.Clone(), nil
}

// PutTrustRecord replaces a record outright. Used for seeding.
func (s *MemoryStore) PutTrustRecord(ctx context.Context, rec *models.UserTrustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trust[rec.UserID] = rec.Clone()
	s.bump(trustKey(rec.UserID))
	s.persist()
	return nil
}

func (s *MemoryStore) UpdateTrustRecord(ctx context.Context, userID string, patch models.TrustPatch) (*models.UserTrustRecord, *models.UserTrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trust[userID]
	if !ok {
		return nil, nil, moderation.ErrNotFound
	}
	before := rec.Clone()
	patch.Apply(rec, time.Now().UTC())
	s.bump(trustKey(userID))
	s.persist()
	return before, rec.Clone(), nil
}
