package api

import (
	"net/http"

	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	"github.com/go-chi/chi/v5"
)

// SubscriptionHandler exposes the subscription state projected from events.
type SubscriptionHandler struct {
	store *store.PostgresStore
}

func NewSubscriptionHandler(s *store.PostgresStore) *SubscriptionHandler {
	return &SubscriptionHandler{store: s}
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) ListForCustomer(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListCustomerSubscriptions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}
