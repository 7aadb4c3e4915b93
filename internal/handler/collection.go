package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/store"
)

type CollectionHandler struct {
	collections *store.CollectionStore
	logger      *slog.Logger
}

func NewCollectionHandler(cs *store.CollectionStore, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: cs, logger: logger}
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.collections.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"collections": entries})
}

type saveCollectionRequest struct {
	Category string `json:"category"`
}

// Save stores a recipe in the user's collection. Saving it again only
// changes the category.
func (h *CollectionHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "recipe_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req saveCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.collections.Save(r.Context(), auth.UserID(r.Context()), id, req.Category); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"recipe_id": id})
}

func (h *CollectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "recipe_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	removed, err := h.collections.Remove(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !removed {
		writeError(w, r, h.logger, apperr.NotFound("recipe is not in the collection"))
		return
	}
	writeOK(w, http.StatusOK, nil)
}
