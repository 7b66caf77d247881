package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/middleware"
	"github.com/campuskart/backend/internal/models"
	"github.com/campuskart/backend/internal/moderation"
)

type ProfileHandler struct {
	store moderation.Store
}

func NewProfileHandler(store moderation.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// GetProfile returns the caller's trust record, creating a clean one on first
// sign-in.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	email := middleware.GetUserEmail(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	prof, err := h.store.GetOrCreateTrustRecord(ctx, userID, email)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("[GetProfile] store")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to load profile"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(prof))
}
