package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DeadLetterHandler struct {
	store *store.PostgresStore
}

func NewDeadLetterHandler(s *store.PostgresStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resolved := q.Get("resolved") == "true"

	letters, err := h.store.ListDeadLetters(r.Context(), q.Get("event_type"), resolved, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, letters)
}

func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	letter, err := h.store.GetDeadLetter(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if letter == nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, letter)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// Resolve marks a dead letter as handled. The body is optional.
func (h *DeadLetterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "manual"
	}

	err := h.store.ResolveDeadLetter(r.Context(), id, req.ResolvedBy)
	if errors.Is(err, store.ErrDeadLetterNotFound) {
		respondError(w, http.StatusNotFound, "dead letter not found or already resolved")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resolve dead letter")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
