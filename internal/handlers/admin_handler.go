package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/middleware"
	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

type AdminHandler struct {
	admin   *moderation.AdminService
	claims  *moderation.AdminClaimSynchronizer
	timeout time.Duration
}

func NewAdminHandler(admin *moderation.AdminService, claims *moderation.AdminClaimSynchronizer, timeout time.Duration) *AdminHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AdminHandler{admin: admin, claims: claims, timeout: timeout}
}

// writeAdminError maps moderation errors onto HTTP statuses.
func writeAdminError(w http.ResponseWriter, op string, err error, notFound string) {
	if errors.Is(err, moderation.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(notFound))
		return
	}
	log.WithError(err).Errorf("[%s] failed", op)
	writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Moderation action failed"))
}

func (h *AdminHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	userID := chi.URLParam(r, "userId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.admin.Ban(ctx, adminID, userID)
	if err != nil {
		writeAdminError(w, "BanUser", err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.ModerationResponse{
		UserID:   userID,
		Action:   "ban",
		Cascaded: n,
	}))
}

func (h *AdminHandler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	userID := chi.URLParam(r, "userId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.Unban(ctx, adminID, userID); err != nil {
		writeAdminError(w, "UnbanUser", err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.ModerationResponse{
		UserID: userID,
		Action: "unban",
	}))
}

func (h *AdminHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	userID := chi.URLParam(r, "userId")

	var req models.SetAdminRequest
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

	rec, err := h.admin.SetAdminFlag(ctx, adminID, userID, *req.Admin)
	if err != nil {
		writeAdminError(w, "SetAdmin", err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rec))
}

func (h *AdminHandler) ApproveListing(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	listingID := chi.URLParam(r, "listingId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.ApproveListing(ctx, adminID, listingID); err != nil {
		writeAdminError(w, "ApproveListing", err, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.ModerationResponse{
		ListingID: listingID,
		Action:    "approve",
	}))
}

func (h *AdminHandler) RejectListing(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	listingID := chi.URLParam(r, "listingId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.RejectListing(ctx, adminID, listingID); err != nil {
		writeAdminError(w, "RejectListing", err, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.ModerationResponse{
		ListingID: listingID,
		Action:    "reject",
	}))
}

func (h *AdminHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	listingID := chi.URLParam(r, "listingId")

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.DeleteListing(ctx, adminID, listingID); err != nil {
		writeAdminError(w, "DeleteListing", err, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.ModerationResponse{
		ListingID: listingID,
		Action:    "delete",
	}))
}

// SelfGrantAdmin is the first-admin bootstrap. It only needs authentication,
// not the admin claim, and is refused unless bootstrap is enabled.
func (h *AdminHandler) SelfGrantAdmin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.claims.SelfGrantAdmin(ctx, userID, middleware.GetUserEmail(r.Context()))
	switch {
	case errors.Is(err, moderation.ErrBootstrapDisabled):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Admin bootstrap is disabled"))
		return
	case errors.Is(err, moderation.ErrClaimsUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Identity provider unavailable"))
		return
	case err != nil:
		log.WithError(err).WithField("user_id", userID).Error("[SelfGrantAdmin] failed")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to grant admin"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(rec))
}
