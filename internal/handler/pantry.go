package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
	"github.com/dukerupert/savory/internal/websocket"
)

// changes drops a user's cached searches and tells their open connections
// what happened.
type changes struct {
	engine *search.Engine
	hub    *websocket.Hub
}

func (c changes) publish(ctx context.Context, userID int64, entity, action string, id int64, extra map[string]any) {
	if c.engine != nil {
		c.engine.InvalidateUser(ctx, userID)
	}
	c.hubOnly(userID, entity, action, id, extra)
}

// hubOnly notifies without touching the search cache, for changes that do
// not affect missing counts.
func (c changes) hubOnly(userID int64, entity, action string, id int64, extra map[string]any) {
	if c.hub != nil {
		c.hub.SendToUser(userID, websocket.NewMessage(entity, action, id, extra))
	}
}

type PantryHandler struct {
	pantry  *store.PantryStore
	changes changes
	logger  *slog.Logger
}

func NewPantryHandler(ps *store.PantryStore, engine *search.Engine, hub *websocket.Hub, logger *slog.Logger) *PantryHandler {
	return &PantryHandler{pantry: ps, changes: changes{engine: engine, hub: hub}, logger: logger}
}

func (h *PantryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.pantry.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"items": items})
}

// Add responds 201 when the ingredient was added and 200 when it was already
// in the pantry.
func (h *PantryHandler) Add(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := auth.UserID(r.Context())
	item, created, err := h.pantry.Add(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.changes.publish(r.Context(), uid, "pantry", "added", id, map[string]any{"name": item.IngredientName})
	}
	writeOK(w, status, envelope{"item": item, "created": created})
}

func (h *PantryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := auth.UserID(r.Context())
	removed, err := h.pantry.Remove(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !removed {
		writeError(w, r, h.logger, apperr.NotFound("ingredient is not in the pantry"))
		return
	}
	h.changes.publish(r.Context(), uid, "pantry", "removed", id, nil)
	writeOK(w, http.StatusOK, nil)
}

// Related returns the pantry item's related ingredient ids followed by its
// own ingredient id.
func (h *PantryHandler) Related(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ids, err := h.pantry.RelatedIDs(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"related_ingredients": ids})
}

// relatedRequest must name related_ingredients; an explicit empty list
// clears them.
type relatedRequest struct {
	Related *[]int64 `json:"related_ingredients"`
}

func (h *PantryHandler) SaveRelated(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req relatedRequest
	if err := requireBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Related == nil {
		writeError(w, r, h.logger, apperr.Validation("related_ingredients is required"))
		return
	}
	uid := auth.UserID(r.Context())
	saved, err := h.pantry.SaveRelated(r.Context(), uid, id, *req.Related)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.changes.publish(r.Context(), uid, "pantry", "related_updated", id, map[string]any{"related_ingredients": saved})
	writeOK(w, http.StatusOK, envelope{"related_ingredients": saved})
}
