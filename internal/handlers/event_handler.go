package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/campuskart/backend/internal/moderation"
	"github.com/campuskart/backend/internal/services"
	"github.com/campuskart/backend/internal/storage"
)

// EventHandler receives Eventarc Firestore triggers and feeds them into the
// moderation dispatcher.
type EventHandler struct {
	dispatch *moderation.Dispatcher
	timeout  time.Duration
}

func NewEventHandler(dispatch *moderation.Dispatcher, timeout time.Duration) *EventHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &EventHandler{dispatch: dispatch, timeout: timeout}
}

// HandleEvent acks malformed and irrelevant events with 2xx/4xx so Eventarc
// drops them, and answers 500 when a handler fails so the event is redelivered.
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ceType := r.Header.Get("Ce-Type")
	entry := log.WithFields(log.Fields{
		"ce_type":    ceType,
		"ce_source":  r.Header.Get("Ce-Source"),
		"ce_subject": r.Header.Get("Ce-Subject"),
		"ce_id":      r.Header.Get("Ce-Id"),
	})

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		entry.WithError(err).Warn("[worker] failed to read request body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev, err := services.DecodeDocumentEvent(ceType, rawBody)
	if err != nil {
		entry.WithError(err).Warn("[worker] undecodable event, dropping")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	entry = entry.WithFields(log.Fields{"collection": ev.Collection, "doc_id": ev.DocID})
	entry.Debug("[worker] event received")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.route(ctx, ev); err != nil {
		entry.WithError(err).Error("[worker] event handling failed")
		http.Error(w, "handler failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *EventHandler) route(ctx context.Context, ev *services.DocumentEvent) error {
	switch ev.Collection {
	case storage.ListingsCollection:
		if ev.Type != services.EventDocumentCreated {
			return nil
		}
		l, err := ev.Listing()
		if err != nil {
			return nil
		}
		return h.dispatch.ListingCreated(ctx, l)

	case storage.UsersCollection:
		switch ev.Type {
		case services.EventDocumentCreated, services.EventDocumentWritten, services.EventDocumentUpdated:
		default:
			return nil
		}
		before, after := ev.TrustRecords()
		return h.dispatch.TrustRecordWritten(ctx, before, after)
	}
	log.WithField("collection", ev.Collection).Debug("[worker] ignoring event for unwatched collection")
	return nil
}
