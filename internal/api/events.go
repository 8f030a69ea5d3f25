package api

import (
	"net/http"

	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type EventHandler struct {
	store *store.PostgresStore
}

func NewEventHandler(s *store.PostgresStore) *EventHandler {
	return &EventHandler{store: s}
}

// List returns received events, newest first. Filters: event_type, status.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	events, err := h.store.ListEvents(r.Context(), q.Get("event_type"), q.Get("status"), queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}
