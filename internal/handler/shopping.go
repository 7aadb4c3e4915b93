package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/model"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
	"github.com/dukerupert/savory/internal/websocket"
)

type ShoppingHandler struct {
	shopping *store.ShoppingStore
	changes  changes
	logger   *slog.Logger
}

func NewShoppingHandler(ss *store.ShoppingStore, engine *search.Engine, hub *websocket.Hub, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{shopping: ss, changes: changes{engine: engine, hub: hub}, logger: logger}
}

type aisleGroup struct {
	Aisle string               `json:"aisle"`
	Items []model.ShoppingItem `json:"items"`
}

// groupByAisle expects items already ordered by aisle.
func groupByAisle(items []model.ShoppingItem) []aisleGroup {
	groups := []aisleGroup{}
	for _, item := range items {
		if n := len(groups); n > 0 && groups[n-1].Aisle == item.Aisle {
			groups[n-1].Items = append(groups[n-1].Items, item)
			continue
		}
		groups = append(groups, aisleGroup{Aisle: item.Aisle, Items: []model.ShoppingItem{item}})
	}
	return groups
}

func (h *ShoppingHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.shopping.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"items": items, "aisles": groupByAisle(items)})
}

func (h *ShoppingHandler) Add(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := auth.UserID(r.Context())
	item, created, err := h.shopping.Add(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.changes.hubOnly(uid, "shopping", "added", id, map[string]any{"name": item.IngredientName})
	}
	writeOK(w, status, envelope{"item": item, "created": created})
}

func (h *ShoppingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := auth.UserID(r.Context())
	removed, err := h.shopping.Remove(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !removed {
		writeError(w, r, h.logger, apperr.NotFound("ingredient is not on the shopping list"))
		return
	}
	h.changes.hubOnly(uid, "shopping", "removed", id, nil)
	writeOK(w, http.StatusOK, nil)
}

func (h *ShoppingHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ingredient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	uid := auth.UserID(r.Context())
	checked, err := h.shopping.Toggle(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.changes.hubOnly(uid, "shopping", "toggled", id, map[string]any{"is_checked": checked})
	writeOK(w, http.StatusOK, envelope{"ingredient_id": id, "is_checked": checked})
}

// Complete moves checked items into the pantry, which changes what the
// user's searches report as missing.
func (h *ShoppingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	moved, err := h.shopping.CompleteTrip(r.Context(), uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if moved > 0 {
		h.changes.publish(r.Context(), uid, "shopping", "completed", 0, map[string]any{"moved": moved})
	}
	writeOK(w, http.StatusOK, envelope{"moved": moved})
}
