package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/middleware"
	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

type ListingHandler struct {
	store    moderation.Store
	dispatch *moderation.Dispatcher
	timeout  time.Duration
}

// NewListingHandler builds the listing endpoints. dispatch is nil when the
// database delivers listing.created events to the worker instead.
func NewListingHandler(store moderation.Store, dispatch *moderation.Dispatcher, timeout time.Duration) *ListingHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ListingHandler{store: store, dispatch: dispatch, timeout: timeout}
}

// CreateListing stores a pending listing; it turns visible only once the
// moderation gate has approved it.
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.store.GetOrCreateTrustRecord(ctx, userID, middleware.GetUserEmail(r.Context()))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[CreateListing] load trust record")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create listing"))
		return
	}
	if rec.Banned {
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Account is banned"))
		return
	}

	listing := &models.Listing{
		ID:          uuid.NewString(),
		OwnerID:     userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURLs:   req.ImageURLs,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateListing(ctx, listing); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[CreateListing] store")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create listing"))
		return
	}
	log.WithFields(log.Fields{"listing_id": listing.ID, "user_id": userID}).Info("[CreateListing] listing created")

	if h.dispatch != nil {
		// Handler failures are logged by the dispatcher; the listing stays pending.
		_ = h.dispatch.ListingCreated(ctx, listing)
		if fresh, err := h.store.GetListing(ctx, listing.ID); err == nil {
			listing = fresh
		}
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(listing))
}

// GetListing hides unapproved or flagged listings from everyone except the
// owner and admins.
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	listing, err := h.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, moderation.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Listing not found"))
			return
		}
		log.WithError(err).WithField("listing_id", listingID).Error("[GetListing] store")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to get listing"))
		return
	}

	if !listing.Visible() {
		userID := middleware.GetUserID(r.Context())
		if userID != listing.OwnerID && !middleware.IsAdmin(r.Context()) {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Listing not found"))
			return
		}
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(listing))
}
